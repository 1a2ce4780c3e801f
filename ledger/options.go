package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher receives balance changes after the unit of work that produced
// them has committed. Delivery is best-effort: errors are logged, never
// returned to the caller of the mutation.
type Publisher interface {
	PublishBalanceChanges(ctx context.Context, changes []BalanceChange) error
}

// Option configures the services in this package.
type Option func(*options)

type options struct {
	log       zerolog.Logger
	publisher Publisher
	advisor   Advisor
	now       func() time.Time
	newID     func() string
}

func defaultOptions() options {
	return options{
		log:   zerolog.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for drift, publish and migration messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithPublisher sets where committed balance changes are sent.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithAdvisor sets the categorization advisor consulted on Create.
func WithAdvisor(a Advisor) Option {
	return func(o *options) { o.advisor = a }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides uuid generation (tests).
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

func (o options) publish(ctx context.Context, changes []BalanceChange) {
	if o.publisher == nil || len(changes) == 0 {
		return
	}
	if err := o.publisher.PublishBalanceChanges(ctx, changes); err != nil {
		o.log.Warn().Err(err).Int("changes", len(changes)).Msg("failed to publish balance changes")
	}
}
