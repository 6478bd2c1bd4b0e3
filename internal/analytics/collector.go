package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/resilience"
)

// Publisher writes a batch of events to the broker.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the in-memory buffer and batching.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector is a Sink that buffers events and publishes them in batches on
// a background goroutine. Track never blocks: when the buffer is full the
// event is dropped and counted. Publishing goes through a circuit breaker so
// a broker outage does not stall the flush loop on every batch.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.RWMutex
	closed  bool
	eventCh chan Event
	done    chan struct{}
}

var _ Sink = (*Collector)(nil)

func NewCollector(publisher Publisher, cfg CollectorConfig, m *metrics.Metrics) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		breaker: resilience.NewCircuitBreaker("analytics-kafka", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			OnStateChange: func(name string, _, to resilience.State) {
				m.BreakerState(name, int(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "analytics-collector"),
		eventCh: make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Start launches the flush loop. It exits after Close drains the buffer.
func (c *Collector) Start() {
	go c.loop()
	c.logger.Info("analytics collector started", "buffer_size", c.cfg.BufferSize, "batch_size", c.cfg.BatchSize)
}

func (c *Collector) Track(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.metrics.EventDropped()
		return
	}
	select {
	case c.eventCh <- e:
	default:
		c.metrics.EventDropped()
		c.logger.Warn("analytics event dropped (buffer full)", "type", e.Type)
	}
}

// Close stops accepting events and waits until the buffer is flushed or ctx
// is done.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: e.PartitionKey(), Type: string(e.Type), Value: e})
			if len(batch) >= c.cfg.BatchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(batch)
			batch = batch[:0]
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.publisher.PublishBatch(ctx, batch)
	})
	if err != nil {
		for range batch {
			c.metrics.EventDropped()
		}
		c.logger.Error("failed to publish analytics batch", "count", len(batch), "error", err)
	}
}
