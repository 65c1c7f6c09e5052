package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Rating event names published after successful lifecycle transitions.
const (
	RatingEventCreated   = "rating.created"
	RatingEventSubmitted = "rating.submitted"
	RatingEventApproved  = "rating.approved"
	RatingEventRejected  = "rating.rejected"
	RatingEventResponded = "rating.responded"
	RatingEventDeleted   = "rating.deleted"
)

// RatingEvent is the fan-out payload consumed by the platform's notification
// pipeline. Publishing is best-effort and never fails the triggering operation.
type RatingEvent struct {
	Event           string    `json:"event"`
	RatingID        uint      `json:"rating_id"`
	EvaluatorID     uint      `json:"evaluator_id"`
	EvaluatedUserID uint      `json:"evaluated_user_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	ActorID         uint      `json:"actor_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// RatingEventPublisher fans lifecycle events out to interested subsystems.
type RatingEventPublisher interface {
	Publish(ctx context.Context, event RatingEvent)
}

type natsRatingEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSRatingEventPublisher builds a publisher writing JSON events to the
// given NATS subject.
func NewNATSRatingEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) RatingEventPublisher {
	return &natsRatingEventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "rating_event_publisher").Logger(),
	}
}

func (p *natsRatingEventPublisher) Publish(_ context.Context, event RatingEvent) {
	if p.conn == nil || p.subject == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event.Event).Msg("failed to encode rating event")
		return
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("event", event.Event).Uint("rating_id", event.RatingID).Msg("failed to publish rating event")
	}
}
