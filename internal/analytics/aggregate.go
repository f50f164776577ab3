package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// AllEvents loads and decodes the full event log, oldest first. Records
// that fail to decode are skipped so one corrupt entry cannot poison the
// aggregate.
func (e *Engine) AllEvents(ctx context.Context) ([]Event, error) {
	raw, err := e.store.List(ctx, eventLogKey)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, entry := range raw {
		var event Event
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			e.logger.Warnf("skipping undecodable analytics event: %v", err)
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// Clear drops the entire event log
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Delete(ctx, eventLogKey)
}

// ComputeFunnelStats derives the funnel report from the event log. The
// computation is a pure function of the log: running it twice against an
// unchanged log yields an identical report.
//
// The per-step denominator is sessions reached, a high-water mark over
// each session's question-scoped events. A session that submitted counts as
// having reached every step regardless of which views made it into the
// log, so late or dropped view events cannot push a completed session's
// drop-off rate above zero.
func (e *Engine) ComputeFunnelStats(ctx context.Context) (*FunnelReport, error) {
	events, err := e.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return e.aggregate(events), nil
}

func (e *Engine) aggregate(events []Event) *FunnelReport {
	numQuestions := len(e.cfg.Labels)

	views := make([]int, numQuestions)
	completions := make([]int, numQuestions)
	dropOffs := make([]int, numQuestions)
	timeTotals := make([]int64, numQuestions)
	timeCounts := make([]int, numQuestions)

	sessions := make(map[string]bool)
	submitted := make(map[string]bool)
	sessionMax := make(map[string]int)

	var dropOffEvents []Event

	for _, ev := range events {
		if ev.SessionID != "" {
			sessions[ev.SessionID] = true
		}

		// the high-water mark feeds on every event carrying a question
		// index, so a session whose view event was lost still counts as
		// having reached the steps its other events prove it saw
		if ev.QuestionIndex != nil {
			idx := *ev.QuestionIndex
			if max, ok := sessionMax[ev.SessionID]; !ok || idx > max {
				sessionMax[ev.SessionID] = idx
			}
		}

		switch ev.EventType {
		case EventQuestionView:
			if ev.QuestionIndex != nil {
				idx := *ev.QuestionIndex
				if idx >= 0 && idx < numQuestions {
					views[idx]++
				}
			}
		case EventQuestionCompleted:
			if ev.QuestionIndex != nil {
				idx := *ev.QuestionIndex
				if idx >= 0 && idx < numQuestions {
					completions[idx]++
					if ev.TimeOnQuestion != nil && *ev.TimeOnQuestion > 0 {
						timeTotals[idx] += *ev.TimeOnQuestion
						timeCounts[idx]++
					}
				}
			}
		case EventDropOff:
			if ev.LastQuestionIndex != nil {
				idx := *ev.LastQuestionIndex
				if idx >= 0 && idx < numQuestions {
					dropOffs[idx]++
				}
			}
			dropOffEvents = append(dropOffEvents, ev)
		case EventFormSubmitted:
			submitted[ev.SessionID] = true
		}
	}

	// a submitted session reached every step
	for sessionID := range submitted {
		sessionMax[sessionID] = numQuestions - 1
	}

	questions := make([]QuestionStat, numQuestions)
	for i := 0; i < numQuestions; i++ {
		reached := 0
		for _, max := range sessionMax {
			if max >= i {
				reached++
			}
		}

		rate := 0.0
		if reached > 0 {
			rate = round1(float64(dropOffs[i]) / float64(reached) * 100)
		}

		avgTime := 0
		if timeCounts[i] > 0 {
			avgTime = int(math.Round(float64(timeTotals[i]) / float64(timeCounts[i]) / 1000))
		}

		questions[i] = QuestionStat{
			Name:            e.label(i),
			Number:          i + 1,
			Views:           views[i],
			SessionsReached: reached,
			Completions:     completions[i],
			DropOffs:        dropOffs[i],
			Rate:            rate,
			AvgTimeSeconds:  avgTime,
		}
	}

	conversionRate := 0.0
	if len(sessions) > 0 {
		conversionRate = round1(float64(len(submitted)) / float64(len(sessions)) * 100)
	}

	recent := make([]DropOffSummary, 0, e.cfg.RecentDropOffs)
	for i := len(dropOffEvents) - 1; i >= 0 && len(recent) < e.cfg.RecentDropOffs; i-- {
		ev := dropOffEvents[i]
		recent = append(recent, DropOffSummary{
			Time:         ev.Timestamp.Format("15:04:05"),
			Question:     questionRef(ev.LastQuestionNumber),
			QuestionName: ev.LastQuestionLabel,
		})
	}

	return &FunnelReport{
		TotalSessions:  len(sessions),
		Completed:      len(submitted),
		ConversionRate: conversionRate,
		Questions:      questions,
		RecentDropOffs: recent,
	}
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func questionRef(number int) string {
	return fmt.Sprintf("Q%d", number)
}
