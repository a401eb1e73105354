package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fieldline/scheduling-service/libs/db"
	"github.com/fieldline/scheduling-service/libs/kafkax"
	otelx "github.com/fieldline/scheduling-service/libs/otel"
)

// Publisher drains pending outbox rows to Kafka. Rows are claimed with
// FOR UPDATE SKIP LOCKED, so running one loop per replica is safe; a row
// is marked published only after the broker acknowledged the write, which
// makes delivery at-least-once and leaves dedupe to consumers' inboxes.
type Publisher struct {
	pool     *db.Pool
	repo     *Repository
	logger   *slog.Logger
	brokers  []string
	interval time.Duration
	batch    int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := &Publisher{
		pool:     pool,
		repo:     repo,
		logger:   logger,
		brokers:  kafkax.SplitBrokers(cfg.Brokers),
		interval: cfg.PollEvery,
		batch:    cfg.BatchSize,
	}
	if p.interval <= 0 {
		p.interval = 2 * time.Second
	}
	if p.batch <= 0 {
		p.batch = 50
	}
	return p
}

// Run polls until ctx is cancelled. Without brokers configured it logs and
// returns; events accumulate in the table and drain once a publisher with
// brokers comes up.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled, no kafka brokers configured")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  p.brokers,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.drainOnce(ctx, writer); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			} else if n > 0 {
				p.logger.Debug("outbox batch published", "events", n)
			}
		}
	}
}

func (p *Publisher) drainOnce(ctx context.Context, writer *kafka.Writer) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pending, err := p.repo.FetchUnpublished(ctx, tx, p.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(pending))
	for _, rec := range pending {
		if err := writer.WriteMessages(ctx, p.message(ctx, rec)); err != nil {
			return 0, err
		}
		ids = append(ids, rec.ID)
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(ids), tx.Commit(ctx)
}

// message rebuilds the Kafka message for one stored event. The topic is the
// event type, the key is the aggregate id so one appointment's events stay
// ordered within a partition, and the trace context captured at insert time
// is re-injected so consumer spans join the original booking trace.
func (p *Publisher) message(ctx context.Context, rec Record) kafka.Message {
	msg := kafka.Message{
		Topic: rec.EventType,
		Key:   []byte(rec.AggregateID),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	traced := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msg.Headers = kafkax.InjectTraceHeaders(traced, msg.Headers)
	return msg
}
