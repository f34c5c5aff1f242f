// Package kafka implements messaging.Broker with kafka-go writers and
// consumer-group readers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/logging/logger"
)

// Kafka represents Kafka implementation
type Kafka struct {
	brokers   []string
	clientID  string
	dialWait  time.Duration
	messaging *config.Messaging
	mu        sync.Mutex
	writer    *kafka.Writer
	readers   map[string]*kafka.Reader
	readersMu sync.Mutex

	// first delay before a failed handler sees the same message again
	handlerBackoff time.Duration
}

var _ messaging.Broker = (*Kafka)(nil)

// New creates a Kafka broker for the configured brokers.
func New(kc *config.Kafka, msg *config.Messaging) *Kafka {
	if msg == nil {
		msg = &config.Messaging{PublishTimeout: 30 * time.Second, RetryAttempts: 3, RetryBackoffMax: 30 * time.Second}
	}
	return &Kafka{
		brokers:        kc.Brokers,
		clientID:       kc.ClientID,
		dialWait:       kc.ConnectTimeout,
		messaging:      msg,
		handlerBackoff: 100 * time.Millisecond,
		readers:        make(map[string]*kafka.Reader),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(kc.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: kc.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Publish writes a keyed message, retrying with exponential backoff.
// Keys hash to partitions so events for one job keep their order.
func (s *Kafka) Publish(ctx context.Context, topic, key string, body []byte) error {
	s.mu.Lock()
	writer := s.writer
	s.mu.Unlock()
	if writer == nil {
		return messaging.ErrClosed
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.messaging.PublishTimeout)
	defer cancel()

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}

	maxRetries := s.messaging.RetryAttempts
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = writer.WriteMessages(timeoutCtx, msg)
		if lastErr == nil {
			return nil
		}
		if timeoutCtx.Err() != nil {
			return fmt.Errorf("publish context timeout: %w", timeoutCtx.Err())
		}
		if attempt < maxRetries {
			select {
			case <-time.After(backoff):
			case <-timeoutCtx.Done():
				return fmt.Errorf("publish context timeout: %w", timeoutCtx.Err())
			}
			backoff *= 2
			if s.messaging.RetryBackoffMax > 0 && backoff > s.messaging.RetryBackoffMax {
				backoff = s.messaging.RetryBackoffMax
			}
		}
	}

	return fmt.Errorf("failed to write message after %d attempts: %w", maxRetries+1, lastErr)
}

// messageReader is the part of *kafka.Reader the consume loop needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Subscribe consumes topic as part of group until ctx is canceled. Offsets
// are committed only after the handler succeeds.
func (s *Kafka) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	reader := s.reader(topic, group)
	defer s.closeReader(topic, group)
	return s.consume(ctx, reader, topic, h)
}

func (s *Kafka) consume(ctx context.Context, reader messageReader, topic string, h messaging.Handler) error {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			logger.Warn(ctx, "kafka fetch failed", "topic", topic, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := s.handle(ctx, topic, m, h); err != nil {
			return err
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := reader.CommitMessages(commitCtx, m); err != nil {
			logger.Error(ctx, "kafka commit failed", "topic", topic, "error", err)
		}
		cancel()
	}
}

// handle runs h on m until it succeeds or ctx ends. The reader hands out
// later messages of the partition only after a fetch, so giving up on m
// would lose it once a later offset is committed.
func (s *Kafka) handle(ctx context.Context, topic string, m kafka.Message, h messaging.Handler) error {
	msg := messaging.Message{Topic: m.Topic, Key: string(m.Key), Body: m.Value}
	backoff := s.handlerBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxBackoff := s.messaging.RetryBackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := h(ctx, msg)
		if err == nil {
			return nil
		}
		logger.Warn(ctx, "kafka handler failed", "topic", topic, "key", msg.Key,
			"partition", m.Partition, "offset", m.Offset, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Kafka) reader(topic, group string) *kafka.Reader {
	key := topic + ":" + group

	s.readersMu.Lock()
	defer s.readersMu.Unlock()

	if r, ok := s.readers[key]; ok {
		return r
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.brokers,
		GroupID:        group,
		Topic:          topic,
		Dialer:         &kafka.Dialer{ClientID: s.clientID, Timeout: s.dialWait},
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error(context.Background(), fmt.Sprintf("kafka: "+msg, args...))
		}),
	})
	s.readers[key] = r
	return r
}

func (s *Kafka) closeReader(topic, group string) {
	key := topic + ":" + group

	s.readersMu.Lock()
	defer s.readersMu.Unlock()

	if r, ok := s.readers[key]; ok {
		_ = r.Close()
		delete(s.readers, key)
	}
}

// Close closes the writer and all readers.
func (s *Kafka) Close() error {
	var errs []error

	s.mu.Lock()
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka writer: %w", err))
		}
		s.writer = nil
	}
	s.mu.Unlock()

	s.readersMu.Lock()
	for key, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka reader %s: %w", key, err))
		}
		delete(s.readers, key)
	}
	s.readersMu.Unlock()

	return errors.Join(errs...)
}
