// Package worker drains the payment stream: each message is decoded,
// routed to whichever processor is currently healthier, forwarded and
// acknowledged. Unacknowledged messages stay pending and are reclaimed
// by a live consumer after an idle threshold, giving at-least-once
// delivery across gateway instances.
package worker

import (
	"context"
	"log"
	"time"

	"go-gateway/internal/codec"
	"go-gateway/internal/config"
	"go-gateway/internal/ledger"
	"go-gateway/internal/selector"
	"go-gateway/internal/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	// GroupName is the consumer group shared by all worker processes.
	GroupName = "payment_processors"

	groupStartPosition = "$"
)

// Store is the stream slice of the coordination store.
type Store interface {
	XGroupCreate(ctx context.Context, stream, group, start string) error
	XReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]redis.XMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XPending(ctx context.Context, stream, group, consumer string, count int64) ([]redis.XPendingExt, error)
	XClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.XMessage, error)
}

// HealthSource yields per-processor health snapshots.
type HealthSource interface {
	Get(ctx context.Context, processor types.Processor) (types.HealthSnapshot, error)
	Reset(ctx context.Context) error
}

// PaymentForwarder delivers a payment to a processor and records it.
type PaymentForwarder interface {
	Forward(ctx context.Context, payment map[string]string, processor types.Processor) error
}

type Consumer struct {
	store        Store
	ledger       PaymentForwarder
	health       HealthSource
	config       *config.Config
	consumerName string
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewConsumer(store Store, forwarder PaymentForwarder, health HealthSource, config *config.Config) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		store:        store,
		ledger:       forwarder,
		health:       health,
		config:       config,
		consumerName: "consumer_" + uuid.NewString(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}, 2),
	}
}

// ConsumerName returns this process's identity within the group.
func (c *Consumer) ConsumerName() string {
	return c.consumerName
}

// Start ensures the consumer group exists and launches the consume and
// reclaim loops. A group that already exists is fine; any other
// creation failure is fatal to startup.
func (c *Consumer) Start() error {
	if err := c.store.XGroupCreate(c.ctx, ledger.StreamName, GroupName, groupStartPosition); err != nil {
		return err
	}

	log.Printf("[worker] consumer %s ready", c.consumerName)
	go c.consumeLoop()
	go c.reclaimLoop()
	return nil
}

func (c *Consumer) Stop() {
	c.cancel()
	<-c.done
	<-c.done
}

func (c *Consumer) consumeLoop() {
	defer func() { c.done <- struct{}{} }()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.consumeNext()
		}
	}
}

// consumeNext pulls at most one new message per cycle. Every failure
// is logged and swallowed so one bad iteration never kills the loop.
func (c *Consumer) consumeNext() {
	messages, err := c.store.XReadGroup(c.ctx, GroupName, c.consumerName, ledger.StreamName, 1, c.config.ReadBlock)
	if err != nil {
		if c.ctx.Err() == nil {
			log.Printf("[worker] ERROR - reading stream: %v", err)
		}
		return
	}

	for _, message := range messages {
		c.handleMessage(message.ID, codec.ValuesToMap(message.Values))
	}
}

// handleMessage routes one payment. The message is acknowledged only
// after a successful forward; any earlier exit leaves it pending for a
// later redelivery.
func (c *Consumer) handleMessage(messageID string, payment map[string]string) {
	var defaultHealth, fallbackHealth types.HealthSnapshot

	group, groupCtx := errgroup.WithContext(c.ctx)
	group.Go(func() error {
		var err error
		defaultHealth, err = c.health.Get(groupCtx, types.ProcessorDefault)
		return err
	})
	group.Go(func() error {
		var err error
		fallbackHealth, err = c.health.Get(groupCtx, types.ProcessorFallback)
		return err
	})
	if err := group.Wait(); err != nil {
		log.Printf("[worker] ERROR - health check for message %s: %v", messageID, err)
		return
	}

	processor, ok := selector.Select(defaultHealth, fallbackHealth)
	if !ok {
		// Force fresh probes and let the message come back on a later
		// delivery.
		log.Printf("[worker] %v for message %s", types.ErrNoProcessor, messageID)
		if err := c.health.Reset(c.ctx); err != nil {
			log.Printf("[worker] ERROR - resetting health cache: %v", err)
		}
		return
	}

	payment["processor"] = string(processor)

	if err := c.ledger.Forward(c.ctx, payment, processor); err != nil {
		log.Printf("[worker] ERROR - processing message %s: %v", messageID, err)
		return
	}

	if err := c.store.XAck(c.ctx, ledger.StreamName, GroupName, messageID); err != nil {
		log.Printf("[worker] ERROR - acking message %s: %v", messageID, err)
	}
}

func (c *Consumer) reclaimLoop() {
	defer func() { c.done <- struct{}{} }()

	ticker := time.NewTicker(c.config.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.reclaimPending()
		}
	}
}

// reclaimPending re-runs delivery for messages this consumer read but
// never acknowledged, once they have sat idle past the threshold.
func (c *Consumer) reclaimPending() {
	pending, err := c.store.XPending(c.ctx, ledger.StreamName, GroupName, c.consumerName, int64(c.config.ReclaimCount))
	if err != nil {
		if c.ctx.Err() == nil {
			log.Printf("[worker] ERROR - listing pending messages: %v", err)
		}
		return
	}

	for _, entry := range pending {
		claimed, err := c.store.XClaim(c.ctx, ledger.StreamName, GroupName, c.consumerName, c.config.ReclaimMinIdle, entry.ID)
		if err != nil {
			log.Printf("[worker] ERROR - claiming message %s: %v", entry.ID, err)
			continue
		}

		for _, message := range claimed {
			if len(message.Values) == 0 {
				continue
			}
			c.handleMessage(message.ID, codec.ValuesToMap(message.Values))
		}
	}
}
