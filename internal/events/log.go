package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-storefront/internal/repo"
)

// LogNotifier writes one structured log line per emitted event.
type LogNotifier struct {
	Logger *zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, evt repo.DomainEvent) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.Info().
		Str("event_id", evt.ID.String()).
		Str("topic", evt.Topic).
		Str("aggregate_id", evt.AggregateID.String()).
		Msg("domain event")
	return nil
}
