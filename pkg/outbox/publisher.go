package outbox

import (
	"context"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/common/kafka"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 5
)

// Publisher drains pending outbox events to Kafka. Delivery is at least
// once: an event is only marked published after the broker acknowledges
// it, and repeated failures eventually park the event as failed.
type Publisher struct {
	repo     *Repository
	producer *kafka.Producer
	logger   *logger.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

func NewPublisher(repo *Repository, producer *kafka.Producer, log *logger.Logger) *Publisher {
	return &Publisher{
		repo:         repo,
		producer:     producer,
		logger:       log,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
	}
}

// Run polls for pending events until the context is cancelled
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			p.publishBatch(ctx)
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) {
	events, err := p.repo.GetPendingEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Errorf("failed to fetch pending outbox events: %v", err)
		return
	}

	for _, event := range events {
		if err := p.producer.PublishEvent(ctx, event.Topic, event.AggregateID, event.Payload); err != nil {
			attempts, ierr := p.repo.IncrementAttempt(ctx, event.ID, err.Error())
			if ierr != nil {
				p.logger.Errorf("failed to record delivery attempt for %s: %v", event.ID, ierr)
				continue
			}
			if attempts >= p.maxAttempts {
				p.logger.Errorf("outbox event %s failed after %d attempts: %v", event.ID, attempts, err)
				if err := p.repo.MarkAsFailed(ctx, event.ID, err.Error()); err != nil {
					p.logger.Errorf("failed to park outbox event %s: %v", event.ID, err)
				}
			}
			continue
		}

		if err := p.repo.MarkAsPublished(ctx, event.ID); err != nil {
			p.logger.Errorf("failed to mark outbox event %s published: %v", event.ID, err)
		}
	}
}
