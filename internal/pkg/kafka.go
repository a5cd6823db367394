package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

type KafkaConfig struct {
	Brokers []string
}

// NewKafkaProducer 不绑定 topic，由消息自行指定
func NewKafkaProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w}, nil
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *KafkaProducer) Send(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func MakeKeyFromID(id uint64) string {
	return fmt.Sprintf("%d", id)
}

// MessageHandler 返回错误时 Run 会退避重试同一条消息，成功后才提交 offset
type MessageHandler func(ctx context.Context, key, value []byte) error

type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Run 阻塞消费直到 ctx 取消
func (c *KafkaConsumer) Run(ctx context.Context, handler MessageHandler) error {
	cfg := c.reader.Config()
	logger := log.With().Str("component", "kafka-consumer").Str("topic", cfg.Topic).Str("group", cfg.GroupID).Logger()
	logger.Info().Msg("consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Msg("fetch message failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.process(ctx, handler, m) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			logger.Error().Err(err).Int64("offset", m.Offset).Msg("commit offset failed")
		}
	}
}

// process 重试直到 handler 成功，ctx 取消时返回 false，offset 保持不动
func (c *KafkaConsumer) process(ctx context.Context, handler MessageHandler, m kafka.Message) bool {
	return RetryUntil(ctx, time.Second, 30*time.Second, func() error {
		processCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err := handler(processCtx, m.Key, m.Value)
		if err != nil {
			log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("message processing failed, retrying")
		}
		return err
	})
}

// RetryUntil 指数退避执行 fn 直到成功，ctx 取消时返回 false
func RetryUntil(ctx context.Context, base, maxWait time.Duration, fn func() error) bool {
	wait := base
	for {
		if err := fn(); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
