package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the async buffer cannot take another envelope.
var ErrQueueFull = errors.New("events: publish queue full")

const defaultPublishTimeout = 5 * time.Second

type job struct {
	topic string
	env   Envelope
}

// AsyncPublisher decouples callers from the transport: Publish only enqueues and
// never waits on the network. Envelopes that do not fit into the buffer are dropped.
type AsyncPublisher struct {
	next    Publisher
	queue   chan job
	timeout time.Duration
	logger  *zap.Logger
}

// NewAsyncPublisher wraps next with a bounded queue.
func NewAsyncPublisher(next Publisher, buffer int, logger *zap.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AsyncPublisher{
		next:    next,
		queue:   make(chan job, buffer),
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// Publish enqueues the envelope without blocking.
func (p *AsyncPublisher) Publish(_ context.Context, topic string, env Envelope) error {
	select {
	case p.queue <- job{topic: topic, env: env}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run forwards queued envelopes until ctx is cancelled.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.forward(j)
		}
	}
}

func (p *AsyncPublisher) forward(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.next.Publish(ctx, j.topic, j.env); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("topic", j.topic),
			zap.String("type", j.env.Type),
			zap.Error(err),
		)
	}
}
