package analytics

import (
	"context"
	"time"
)

// Sweep applies the timed drop-off triggers to every tracked session:
// hidden past the hidden threshold, or inactive past the inactivity
// threshold while visible. Sessions idle past the expiry are disposed of
// afterwards so the map cannot grow without bound.
//
// Candidates are collected under the lock and fired after it is released;
// TrackDropOff re-checks the latches itself, so a race with a concurrent
// submission still yields at most one terminal event.
func (e *Engine) Sweep(ctx context.Context) {
	now := e.clock.Now()

	type candidate struct {
		sessionID string
		lastIdx   int
	}
	var candidates []candidate

	e.mu.Lock()
	for sessionID, st := range e.sessions {
		if st.submissionTracked || st.dropOffTracked {
			continue
		}
		if st.lastQuestionIndex < 0 || st.lastQuestionIndex >= e.terminalIndex() {
			continue
		}

		hiddenTooLong := st.hiddenSince != nil && now.Sub(*st.hiddenSince) >= e.cfg.HiddenThreshold
		idleWhileVisible := st.hiddenSince == nil && now.Sub(st.lastActivity) >= e.cfg.InactivityThreshold

		if hiddenTooLong || idleWhileVisible {
			candidates = append(candidates, candidate{sessionID, st.lastQuestionIndex})
		}
	}
	e.mu.Unlock()

	for _, c := range candidates {
		e.TrackDropOff(ctx, c.sessionID, c.lastIdx, nil)
	}

	e.mu.Lock()
	for sessionID, st := range e.sessions {
		if now.Sub(st.lastActivity) >= e.cfg.SessionIdleExpiry {
			delete(e.sessions, sessionID)
		}
	}
	e.mu.Unlock()
}

// Run sweeps on the given interval until the context is cancelled
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
