package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mindmed/mindmed-api/internal/config"
	"github.com/mindmed/mindmed-api/internal/events"
	"github.com/mindmed/mindmed-api/internal/models"
)

// Dispatcher handles one decoded event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.Event) error
}

// Worker consumes the event topic as part of a consumer group.
type Worker struct {
	cfg        *config.Config
	consumer   sarama.ConsumerGroup
	dispatcher Dispatcher
	logger     *slog.Logger
	ready      chan bool
	readyOnce  sync.Once
	sleep      func(ctx context.Context, d time.Duration)
}

func NewWorker(cfg *config.Config, consumer sarama.ConsumerGroup, dispatcher Dispatcher, logger *slog.Logger) *Worker {
	logger = logger.With("component", "worker")
	logger.Info("Initializing new Worker")
	return &Worker{
		cfg:        cfg,
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     logger,
		ready:      make(chan bool),
		sleep:      sleepContext,
	}
}

// Start consumes until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	w.logger.Info("Starting worker", "topics", topics)

	// Start error logging for consumer errors
	errs := w.consumer.Errors()
	go func() {
		for err := range errs {
			w.logger.Error("Kafka consumer error received", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				w.logger.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				w.logger.Info("Context error detected, exiting consumer loop", "error", ctx.Err())
				return
			}
		}
	}()

	select {
	case <-w.ready:
		w.logger.Info("Worker setup complete; consumer ready")
	case <-ctx.Done():
	}

	<-ctx.Done()
	<-done
	w.logger.Info("Worker shutting down gracefully")
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session setup complete")
	w.readyOnce.Do(func() { close(w.ready) })
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session cleanup complete")
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		w.logger.Debug("Message received from Kafka", "offset", message.Offset, "partition", message.Partition)
		if err := w.processMessage(session.Context(), message); err != nil {
			w.logger.Error("Failed to process event", "offset", message.Offset, "error", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// processMessage decodes an event and dispatches it, retrying failures
// RetryMax times with RetryBackoff between attempts.
func (w *Worker) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := events.Decode(msg.Value)
	if err != nil {
		w.logger.Error("JSON unmarshalling failed", "error", err, "raw", string(msg.Value))
		return err
	}

	attempts := w.cfg.Kafka.RetryMax
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.dispatcher.Dispatch(ctx, event)
		if err == nil {
			w.logger.Info("Event processed", "type", event.Type, "user_id", event.UserID, "attempt", attempt)
			return nil
		}
		w.logger.Error("Event processing failed", "type", event.Type, "user_id", event.UserID, "attempt", attempt, "error", err)
		if attempt < attempts {
			w.sleep(ctx, w.cfg.Kafka.RetryBackoff)
		}
		if ctx.Err() != nil {
			break
		}
	}

	w.logger.Error("Event processing ultimately failed", "type", event.Type, "user_id", event.UserID, "error", err)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
