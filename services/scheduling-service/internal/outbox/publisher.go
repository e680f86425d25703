package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// Source yields unpublished outbox records. Both the Postgres repository and
// the in-memory store implement it.
type Source interface {
	Relay(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error)
}

// Sink is satisfied by *kafka.Writer.
type Sink interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

type Publisher struct {
	source    Source
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pollEvery time.Duration
	batchSize int
}

func NewPublisher(source Source, sink Sink, logger *slog.Logger, m *metrics.Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		sink:      sink,
		logger:    logger,
		metrics:   m,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another poll so a backlog drains without waiting for the ticker.
func (p *Publisher) Run(ctx context.Context) {
	if p.sink == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := p.PublishBatch(ctx)
				if err != nil {
					p.logger.Error("outbox publish failed", "err", err)
					break
				}
				if n < p.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	n, err := p.source.Relay(ctx, p.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
			msgs = append(msgs, kafka.Message{
				Topic:   r.EventType,
				Key:     []byte(r.AggregateID),
				Value:   r.Payload,
				Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.EventHeaders(r.EventID, r.EventType)),
			})
		}
		return p.sink.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		p.metrics.ObserveOutbox("failed", 1)
		return 0, err
	}
	p.metrics.ObserveOutbox("published", n)
	return n, nil
}
