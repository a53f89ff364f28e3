package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
)

// Dispatcher delivers billing events to their recipients. Callers treat a
// returned error as a delivery failure to log, never as a reason to undo a
// committed state change.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// LogDispatcher writes events to the log. It is the default driver and the
// fallback when no broker is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notify")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event domain.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("type", string(event.Type)),
		zap.String("recipient_id", event.RecipientID.String()),
		zap.String("recipient_name", event.RecipientName),
	}
	if event.RecipientRole != "" {
		fields = append(fields, zap.String("recipient_role", event.RecipientRole))
	}
	if event.Amount != nil {
		fields = append(fields, zap.String("amount", event.Amount.String()), zap.String("currency", event.Currency))
	}
	if event.Reference != "" {
		fields = append(fields, zap.String("reference", event.Reference))
	}
	d.logger.Info("notification dispatched", fields...)
	return nil
}

// Multi fans an event out to several dispatchers and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Envelope is the wire format published to brokers.
type Envelope struct {
	Version int          `json:"version"`
	Event   domain.Event `json:"event"`
}

func envelope(event domain.Event) Envelope {
	return Envelope{Version: 1, Event: event}
}
