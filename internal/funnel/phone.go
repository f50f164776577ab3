package funnel

import (
	"sort"
	"strings"
)

// dialCodes maps supported country identifiers to their international
// dialing prefixes. UK is kept as-is rather than GB to stay compatible
// with stored drafts.
var dialCodes = map[string]string{
	"US": "+1",
	"CA": "+1",
	"MX": "+52",

	"UK": "+44",
	"DE": "+49",
	"FR": "+33",
	"IT": "+39",
	"ES": "+34",
	"NL": "+31",
	"BE": "+32",
	"CH": "+41",
	"AT": "+43",
	"SE": "+46",
	"NO": "+47",
	"DK": "+45",
	"FI": "+358",
	"PL": "+48",
	"PT": "+351",
	"IE": "+353",
	"GR": "+30",
	"CZ": "+420",
	"HU": "+36",
	"RO": "+40",
	"BG": "+359",
	"HR": "+385",
	"SK": "+421",
	"SI": "+386",
	"EE": "+372",
	"LV": "+371",
	"LT": "+370",
	"LU": "+352",
	"MT": "+356",
	"CY": "+357",
	"IS": "+354",
	"RU": "+7",
	"UA": "+380",
	"TR": "+90",

	"CN": "+86",
	"JP": "+81",
	"IN": "+91",
	"KR": "+82",
	"SG": "+65",
	"MY": "+60",
	"TH": "+66",
	"PH": "+63",
	"ID": "+62",
	"VN": "+84",
	"HK": "+852",
	"TW": "+886",
	"AE": "+971",
	"SA": "+966",
	"IL": "+972",
	"NZ": "+64",

	"BR": "+55",
	"AR": "+54",
	"CL": "+56",
	"CO": "+57",
	"PE": "+51",

	"ZA": "+27",
	"EG": "+20",
	"NG": "+234",
	"KE": "+254",

	"AU": "+61",
}

// DialCode returns the dialing prefix for a country, or "" when the
// country is unknown.
func DialCode(country string) string {
	return dialCodes[country]
}

// cleanPhone strips everything except digits and a leading +
func cleanPhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetectCountry guesses the country from an international phone number by
// matching dial prefixes longest-first, so +358 resolves to FI before +35
// could misfire. Returns "" when the number carries no recognizable prefix.
func DetectCountry(phone string) string {
	cleaned := cleanPhone(phone)
	if !strings.HasPrefix(cleaned, "+") {
		return ""
	}

	type entry struct {
		country string
		code    string
	}
	entries := make([]entry, 0, len(dialCodes))
	for country, code := range dialCodes {
		entries = append(entries, entry{country, code})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].code) != len(entries[j].code) {
			return len(entries[i].code) > len(entries[j].code)
		}
		// US and CA share +1; resolve the tie to US
		return entries[i].country > entries[j].country
	})

	for _, e := range entries {
		if strings.HasPrefix(cleaned, e.code) {
			return e.country
		}
	}
	return ""
}

// StripDialCode reduces a phone number to its national digits. An
// international prefix is removed when recognized; a bare + is dropped
// otherwise.
func StripDialCode(phone, country string) string {
	cleaned := cleanPhone(phone)

	if code := dialCodes[country]; code != "" && strings.HasPrefix(cleaned, code) {
		return cleaned[len(code):]
	}
	if strings.HasPrefix(cleaned, "+") {
		if detected := DetectCountry(phone); detected != "" {
			return cleaned[len(dialCodes[detected]):]
		}
		return cleaned[1:]
	}
	return cleaned
}

// FullPhone joins the country's dial prefix and the national number, or
// returns "" when either half is missing.
func FullPhone(country, phone string) string {
	code := dialCodes[country]
	if code == "" || strings.TrimSpace(phone) == "" {
		return ""
	}
	return code + cleanPhone(phone)
}
