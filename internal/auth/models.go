package auth

// LoginRequest represents a dashboard login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents a successful authentication
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
