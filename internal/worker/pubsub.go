package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Pub/Sub job types.
const (
	JobRefresh = "refresh"
	JobSweep   = "sweep"
)

var (
	// ErrInvalidMessage is returned for payloads that are not a RefreshMessage.
	ErrInvalidMessage = errors.New("invalid refresh message")
	// ErrUnknownJob is returned for job types the worker does not handle.
	ErrUnknownJob = errors.New("unknown job type")
)

// RefreshMessage is the Pub/Sub payload that triggers a cache refresh.
type RefreshMessage struct {
	JobType string `json:"job_type"`
	// StationIDs limits the refresh. Empty refreshes the configured set.
	StationIDs []string `json:"station_ids,omitempty"`
}

// PubSubHandler receives refresh triggers from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	refreshJob       *RefreshJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Refreshes overlap poorly; take one trigger at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		refreshJob:       cfg.RefreshJob,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.refreshJob.HandleMessage(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrUnknownJob):
		// Redelivery cannot fix these.
		logger.Warn().Err(err).Msg("dropping pubsub message")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Msg("refresh job failed")
		msg.Nack()
	default:
		msg.Ack()
	}
}

// HandleMessage runs the job described by a RefreshMessage payload.
// A refresh fails when more stations failed than succeeded.
func (j *RefreshJob) HandleMessage(ctx context.Context, data []byte) error {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch msg.JobType {
	case JobRefresh:
		result := j.Run(ctx, TriggerPubSub, msg.StationIDs...)
		if result.Failed > result.Successful {
			return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Total)
		}
		return nil
	case JobSweep:
		removed := j.service.SweepCache()
		j.logger.Info().Int("swept", removed).Msg("cache sweep completed")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}
