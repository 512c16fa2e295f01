package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/internal/dto"
	"github.com/talking-potato/booking-service/internal/metrics"
	"github.com/talking-potato/booking-service/internal/notify"
	"github.com/talking-potato/booking-service/internal/repository"
	"github.com/talking-potato/booking-service/pkg/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Admitter runs the capacity check-and-insert for one booking request.
type Admitter interface {
	Admit(ctx context.Context, req *dto.BookingRequest) (*domain.Booking, error)
}

// OutcomeDeliverer pushes an outcome to the requester's live session.
type OutcomeDeliverer interface {
	Deliver(userID string, event *dto.OutcomeEvent) bool
}

// BookingConsumerConfig holds configuration for BookingConsumer
type BookingConsumerConfig struct {
	Brokers          []string
	GroupID          string
	ClientID         string
	Topic            string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration

	Admitter  Admitter
	Dedup     repository.DedupStore
	Deliverer OutcomeDeliverer
	Notifier  notify.Notifier
	Logger    *logger.Logger
}

// BookingConsumer consumes booking requests from the request topic and
// runs them through admission. Requests are produced keyed by user ID,
// so one user's requests share a partition; records within a partition
// are processed strictly in order, which preserves per-requester
// ordering. Every record is committed whether admission succeeded or
// not: a request's outcome is reported to the requester, never retried
// by redelivery.
type BookingConsumer struct {
	config    *BookingConsumerConfig
	client    *kgo.Client
	admitter  Admitter
	dedup     repository.DedupStore
	deliverer OutcomeDeliverer
	notifier  notify.Notifier
	log       *logger.Logger
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

// NewBookingConsumer creates a new BookingConsumer
func NewBookingConsumer(ctx context.Context, cfg *BookingConsumerConfig) (*BookingConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.RebalanceTimeout == 0 {
		cfg.RebalanceTimeout = 60 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ClientID(cfg.ClientID),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.RebalanceTimeout(cfg.RebalanceTimeout),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &BookingConsumer{
		config:    cfg,
		client:    client,
		admitter:  cfg.Admitter,
		dedup:     cfg.Dedup,
		deliverer: cfg.Deliverer,
		notifier:  cfg.Notifier,
		log:       cfg.Logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins consuming booking requests. Blocks until the context is
// canceled or Stop is called.
func (c *BookingConsumer) Start(ctx context.Context) error {
	c.log.Info("booking consumer started", "topic", c.config.Topic, "group", c.config.GroupID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.log.ErrorContext(ctx, "fetch error",
					"topic", err.Topic,
					"partition", err.Partition,
					"error", err.Err,
				)
			}
			continue
		}

		// One goroutine per partition, sequential within a partition.
		// Per-requester ordering rides on the producer keying records
		// by user ID.
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if len(p.Records) == 0 {
				return
			}
			c.wg.Add(1)
			go func(records []*kgo.Record) {
				defer c.wg.Done()
				for _, record := range records {
					c.ProcessRecord(ctx, record)
				}
			}(p.Records)
		})
		c.wg.Wait()

		// Commit unconditionally: outcomes were already reported
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.log.ErrorContext(ctx, "failed to commit offsets", "error", err)
		}
	}
}

// Stop stops the consumer and waits for in-flight records
func (c *BookingConsumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.client.Close()
}

// ProcessRecord handles a single booking request record. It never
// returns an error: malformed and failed requests resolve to a failure
// outcome and the record is acknowledged regardless.
func (c *BookingConsumer) ProcessRecord(ctx context.Context, record *kgo.Record) {
	var req dto.BookingRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.log.ErrorContext(ctx, "dropping malformed booking request",
			"partition", record.Partition,
			"offset", record.Offset,
			"error", err,
		)
		return
	}

	if c.seenBefore(ctx, req.DedupToken) {
		metrics.RecordDuplicate(ctx)
		c.log.InfoContext(ctx, "skipping duplicate booking request",
			"dedup_token", req.DedupToken,
			"user_id", req.UserID,
		)
		return
	}

	outcome, decided := c.process(ctx, &req)

	// The token is recorded only once the decision is durable. A crash
	// before this point leaves the token unseen, so the redelivered
	// request runs admission again instead of being dropped as a
	// duplicate; the capacity check bounds the cost of the rare
	// double-processing.
	if decided {
		c.markProcessed(ctx, req.DedupToken)
	}

	delivered := c.deliverer.Deliver(req.UserID, outcome)
	metrics.RecordOutcome(ctx, delivered)
	if !delivered {
		c.log.InfoContext(ctx, "no open session for outcome, dropped",
			"user_id", req.UserID,
			"status", outcome.Status,
		)
	}
}

// process runs admission and maps the result to an outcome event. The
// decided flag reports whether the request reached a durable decision:
// admitted, capacity-rejected, and invalid requests are decided; an
// unexpected fault is not, and its token must stay unrecorded so a
// redelivery can retry it.
func (c *BookingConsumer) process(ctx context.Context, req *dto.BookingRequest) (outcome *dto.OutcomeEvent, decided bool) {
	booking, err := c.admitter.Admit(ctx, req)
	switch {
	case err == nil:
		if c.notifier != nil {
			// Post-commit, best effort: the booking stands either way
			c.notifier.NotifyConfirmed(ctx, booking)
		}
		return dto.NewSuccessOutcome("Booking confirmed.", booking.ID), true

	case domain.IsAdmissionRejection(err):
		return dto.NewFailureOutcome("Not enough seats available for the requested slot."), true

	case domain.IsValidationError(err):
		c.log.WarnContext(ctx, "invalid booking request",
			"user_id", req.UserID,
			"store_id", req.StoreID,
			"error", err,
		)
		return dto.NewFailureOutcome("Invalid booking request."), true

	default:
		c.log.ErrorContext(ctx, "booking request processing failed",
			"user_id", req.UserID,
			"store_id", req.StoreID,
			"error", err,
		)
		return dto.NewFailureOutcome("Booking could not be processed. Please try again."), false
	}
}

// seenBefore reports whether the dedup token was already recorded. Dedup
// errors fail open: processing a request twice is capacity-guarded,
// losing one is not recoverable.
func (c *BookingConsumer) seenBefore(ctx context.Context, token string) bool {
	if token == "" || c.dedup == nil {
		return false
	}
	seen, err := c.dedup.Seen(ctx, token)
	if err != nil {
		c.log.WarnContext(ctx, "dedup check failed, processing anyway",
			"dedup_token", token,
			"error", err,
		)
		return false
	}
	return seen
}

// markProcessed records the dedup token; failures are logged and ignored
// (the next delivery of this token re-runs a capacity-guarded admission).
func (c *BookingConsumer) markProcessed(ctx context.Context, token string) {
	if token == "" || c.dedup == nil {
		return
	}
	if err := c.dedup.MarkProcessed(ctx, token); err != nil {
		c.log.WarnContext(ctx, "failed to record dedup token",
			"dedup_token", token,
			"error", err,
		)
	}
}
