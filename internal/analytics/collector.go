package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/webseek/webseek/pkg/kafka"
)

// Publisher is the slice of the Kafka producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector accepts events from hot paths without blocking them. Events go
// into a buffered channel and a background goroutine flushes them to Kafka
// in batches, either when the batch fills or after flushInterval. A nil
// *Collector is valid and discards everything, so services can run with
// Kafka disabled.
type Collector struct {
	producer      Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(producer Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer:      producer,
		eventCh:       make(chan any, bufferSize),
		batchSize:     100,
		flushInterval: 5 * time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
	)
}

// Track queues an event for publishing. It never blocks; when the buffer is
// full the event is dropped with a warning.
func (c *Collector) Track(event any) {
	if c == nil {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// flush loop to exit.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	close(c.eventCh)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.producer.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics batch",
				"count", len(batch),
				"error", err,
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				cancel()
				return
			}
			batch = append(batch, kafka.Event{Key: "analytics", Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drainInto(&batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(flushCtx)
			cancel()
			return
		}
	}
}

// drainInto moves everything still queued into the batch without blocking.
func (c *Collector) drainInto(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: "analytics", Value: event})
		default:
			return
		}
	}
}
