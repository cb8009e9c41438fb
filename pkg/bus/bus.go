// Package bus implements the durable, partitioned message bus interface
// (spec §4.4) on top of Kafka via franz-go: a producer with bounded
// backpressure and gzip payloads, and a consumer with manual offset commit.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	TopicRawLogs      = "raw_logs"
	TopicEnrichedLogs = "enriched_logs"
	TopicAlerts       = "alerts"
)

// Config configures a Producer or Consumer. Brokers, client ID prefix and
// topic prefix are shared; GroupID and Topics are only meaningful for a
// Consumer.
type Config struct {
	Brokers         []string
	ClientIDPrefix  string
	TopicPrefix     string
	GroupID         string
	Topics          []string
	MaxMessageBytes int32
	ProduceTimeout  time.Duration
}

func (c Config) topic(name string) string {
	if c.TopicPrefix == "" {
		return name
	}
	return c.TopicPrefix + "_" + name
}

// Producer publishes events to the bus with at-least-once delivery. A full
// internal queue surfaces backpressure as a blocking Publish call; callers
// enforce the acknowledgement-window timeout via the context they pass in.
type Producer struct {
	client *kgo.Client
	cfg    Config
}

func NewProducer(cfg Config) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientIDPrefix + "-producer"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
	}
	if cfg.MaxMessageBytes > 0 {
		opts = append(opts, kgo.ProducerBatchMaxBytes(cfg.MaxMessageBytes))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: new producer: %w", err)
	}
	return &Producer{client: client, cfg: cfg}, nil
}

func (p *Producer) Close() { p.client.Close() }

// Publish blocks for acknowledgement, up to the caller's context deadline.
// Key preserves per-key ordering (spec §5): events with the same key land on
// the same partition and are observed by consumers in publish order.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{
		Topic: p.cfg.topic(topic),
		Key:   key,
		Value: value,
	}
	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	return nil
}

// Message is one fetched record handed to a Consumer callback.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
}

// Handler processes one message. Returning an error skips the commit for
// that message's offset so a rebalanced or restarted consumer re-delivers it
// (at-least-once, spec §4.4/§5).
type Handler func(ctx context.Context, msg Message) error

// Consumer reads a topic as part of a consumer group with manual offset
// commit: offsets are only advanced after Handler returns nil.
type Consumer struct {
	client *kgo.Client
	cfg    Config
}

func NewConsumer(cfg Config) (*Consumer, error) {
	topics := make([]string, len(cfg.Topics))
	for i, t := range cfg.Topics {
		topics[i] = cfg.topic(t)
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientIDPrefix + "-consumer"),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(200 * time.Millisecond),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: new consumer: %w", err)
	}
	return &Consumer{client: client, cfg: cfg}, nil
}

func (c *Consumer) Close() { c.client.Close() }

// Run polls the bus until ctx is cancelled, invoking handle for every
// record and committing only the offsets whose handler succeeded. A
// handler failure is logged by the caller via the returned error and the
// record is left uncommitted for redelivery.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				if e.Err != nil && ctx.Err() == nil {
					return fmt.Errorf("bus: fetch error on %s/%d: %w", e.Topic, e.Partition, e.Err)
				}
			}
			continue
		}

		var toCommit []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			msg := Message{
				Topic:     r.Topic,
				Key:       r.Key,
				Value:     r.Value,
				Partition: r.Partition,
				Offset:    r.Offset,
			}
			if err := handle(ctx, msg); err != nil {
				return // leave uncommitted; redelivered on next poll/rebalance
			}
			toCommit = append(toCommit, r)
		})

		if len(toCommit) > 0 {
			if err := c.client.CommitRecords(ctx, toCommit...); err != nil {
				return fmt.Errorf("bus: commit offsets: %w", err)
			}
		}
	}
}
