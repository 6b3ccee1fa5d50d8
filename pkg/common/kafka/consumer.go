package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/gateway/httpclient"
	"github.com/segmentio/kafka-go"
)

const (
	retryAttempts  = 5
	retryBaseDelay = 250 * time.Millisecond
	retryPause     = 2 * time.Second
)

type Consumer struct {
	reader     *kafka.Reader
	retryDelay time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

// ErrPermanent marks handler failures that must not be retried; the message is
// committed and dropped.
var ErrPermanent = errors.New("permanent event failure")

func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader, retryDelay: retryBaseDelay}
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			continue
		}

		event, err := DecodeEvent(message.Value)
		if err != nil {
			logger.Log.WithError(err).Error("Failed to unmarshal event")
			c.commit(ctx, message)
			continue
		}

		// Failed events are retried in place; the next message is not fetched
		// until this one succeeds or fails permanently.
		if err := deliver(ctx, handler, event, c.retryDelay); err != nil {
			if !errors.Is(err, ErrPermanent) {
				return err
			}
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).Warn("Dropping event after permanent failure")
		}

		c.commit(ctx, message)
	}
}

// deliver runs handler until it succeeds, fails with ErrPermanent or ctx ends.
// Only the context error is returned for a cancelled delivery.
func deliver(ctx context.Context, handler EventHandler, event models.Event, baseDelay time.Duration) error {
	for {
		err := httpclient.Retry(ctx, retryAttempts, baseDelay, func() error {
			err := handler(ctx, event)
			if errors.Is(err, ErrPermanent) {
				return httpclient.Permanent(err)
			}
			return err
		})
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Error("Failed to process event, retrying")

		select {
		case <-time.After(retryPause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		logger.Log.WithError(err).Error("Failed to commit message")
	}
}

func DecodeEvent(raw []byte) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
