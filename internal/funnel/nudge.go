package funnel

import (
	"sync"
	"time"
)

// NudgeState is the phase of the idle-attention nudge cycle
type NudgeState int

const (
	NudgeIdle NudgeState = iota
	NudgeWaiting
	NudgeBouncing
	NudgeCooling
)

// AttentionNudger drives the advance-button attention animation: after a
// quiet period the button bounces briefly, cools down, then waits for the
// next quiet period. Any visitor activity resets the cycle to waiting.
type AttentionNudger struct {
	wait   time.Duration
	bounce time.Duration
	cool   time.Duration

	mu    sync.Mutex
	state NudgeState
	timer *time.Timer
	gen   int
}

// NewAttentionNudger creates a stopped nudger with the given phase
// durations. Zero durations get the shipped defaults: wait 10s, bounce 2s,
// cooldown 3s.
func NewAttentionNudger(wait, bounce, cool time.Duration) *AttentionNudger {
	if wait == 0 {
		wait = 10 * time.Second
	}
	if bounce == 0 {
		bounce = 2 * time.Second
	}
	if cool == 0 {
		cool = 3 * time.Second
	}
	return &AttentionNudger{wait: wait, bounce: bounce, cool: cool}
}

// Start begins the waiting phase. Starting an already running nudger
// restarts the wait.
func (n *AttentionNudger) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transition(NudgeWaiting)
}

// Stop returns the nudger to idle and cancels any pending transition
func (n *AttentionNudger) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transition(NudgeIdle)
}

// Activity resets a running nudger back to the waiting phase. Idle nudgers
// stay idle.
func (n *AttentionNudger) Activity() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == NudgeIdle {
		return
	}
	n.transition(NudgeWaiting)
}

// Active reports whether the bounce animation should currently show
func (n *AttentionNudger) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == NudgeBouncing
}

// State returns the current phase
func (n *AttentionNudger) State() NudgeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// transition moves to the given phase and schedules the next one. Caller
// holds the lock. The generation counter invalidates timers from
// superseded phases.
func (n *AttentionNudger) transition(state NudgeState) {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.state = state
	n.gen++
	gen := n.gen

	var after time.Duration
	var next NudgeState
	switch state {
	case NudgeWaiting:
		after, next = n.wait, NudgeBouncing
	case NudgeBouncing:
		after, next = n.bounce, NudgeCooling
	case NudgeCooling:
		after, next = n.cool, NudgeWaiting
	default:
		return
	}

	n.timer = time.AfterFunc(after, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.gen != gen {
			return
		}
		n.transition(next)
	})
}
