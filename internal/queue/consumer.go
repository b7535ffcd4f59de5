package queue

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is the number of retry rounds before a message is dead-lettered.
const MaxRetries = 10

const retriesHeader = "x-retries"

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Handler processes one ingestion trigger.
type Handler func(ctx context.Context, msg IngestMessage) error

// Consume handles deliveries one at a time until ctx is done. Successful
// messages are acked, failed ones are routed through HandleFailure and
// undecodable ones go straight to the dead-letter queue.
func Consume(
	ctx context.Context,
	pub Publisher,
	deliveries <-chan amqp091.Delivery,
	queueName string,
	handle Handler,
) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			handleDelivery(ctx, pub, d, queueName, handle)
		}
	}
}

func handleDelivery(ctx context.Context, pub Publisher, d amqp091.Delivery, queueName string, handle Handler) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", queueName)

	msg, err := DecodeIngestMessage(d.Body)
	if err != nil {
		logger.Error("[Queue] Dropping malformed message", "queue", queueName, "err", err)
		deadLetter(ctx, pub, d, queueName)
		return
	}

	if err := handle(ctx, msg); err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the run, the broker redelivers it.
			if nackErr := d.Nack(false, true); nackErr != nil {
				logger.Error("[Queue] Failed to nack message", "err", nackErr)
			}
			return
		}
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
		HandleFailure(ctx, pub, d, queueName)
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info(
		"[Queue] Message processed successfully",
		"queue", queueName,
		"duration", util.FormatClock(time.Since(start)),
	)
}

// HandleFailure republishes d on the retry queue with an incremented
// retry counter, or on the dead-letter queue once MaxRetries is reached.
// The original delivery is acked after a successful publish and requeued
// otherwise.
func HandleFailure(ctx context.Context, pub Publisher, d amqp091.Delivery, queueName string) {
	retries := RetryCount(d.Headers)
	if retries >= MaxRetries {
		deadLetter(ctx, pub, d, queueName)
		return
	}

	retryName := queueName + RetrySuffix
	headers := amqp091.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	if err := PublishFIFO(ctx, pub, retryName, d.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deadLetter(ctx context.Context, pub Publisher, d amqp091.Delivery, queueName string) {
	dlqName := queueName + DLQSuffix
	logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
	if err := PublishFIFO(ctx, pub, dlqName, d.Body, d.Headers); err != nil {
		logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// RetryCount reads the retry counter. Brokers and clients disagree on the
// integer width, so every integer type is accepted.
func RetryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}
