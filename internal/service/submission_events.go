package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

const submissionEventBufferSize = 8

// Transition triggers recorded on events and metrics.
const (
	TriggerStudent = "student"
	TriggerStart   = "start"
	TriggerEnforce = "on_access"
	TriggerSweep   = "sweep"
	TriggerGrading = "manual_grading"
)

// SubmissionEvent describes one lifecycle transition.
type SubmissionEvent struct {
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	AssessmentID uint      `json:"assessment_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Trigger      string    `json:"trigger"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SubmissionEventPublisher fans lifecycle events out to listeners.
type SubmissionEventPublisher interface {
	Publish(ctx context.Context, event SubmissionEvent)
}

// SubmissionEvents publishes lifecycle events locally and across replicas.
type SubmissionEvents interface {
	SubmissionEventPublisher
	Subscribe(submissionID uint) (<-chan SubmissionEvent, func())
	Start(ctx context.Context)
}

type submissionEvents struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *submissionBroker
	nodeID       string
}

type submissionEnvelope struct {
	Source string          `json:"source"`
	Event  SubmissionEvent `json:"event"`
}

type submissionBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan SubmissionEvent]struct{}
}

// NewSubmissionEvents constructs the event hub. Nil clients disable the
// corresponding cross-replica transport.
func NewSubmissionEvents(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) SubmissionEvents {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":submissions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".submissions"
	}

	return &submissionEvents{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "submission_events").Logger(),
		broker: &submissionBroker{
			subscribers: make(map[uint]map[chan SubmissionEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *submissionEvents) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *submissionEvents) Publish(ctx context.Context, event SubmissionEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	observability.SubmissionEvents().WithLabelValues("local").Inc()
	s.broker.broadcast(event)

	payload, err := json.Marshal(submissionEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode submission event")
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to publish submission event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to publish submission event to nats")
		}
	}
}

func (s *submissionEvents) Subscribe(submissionID uint) (<-chan SubmissionEvent, func()) {
	channel := make(chan SubmissionEvent, submissionEventBufferSize)
	s.broker.subscribe(submissionID, channel)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { s.broker.unsubscribe(submissionID, channel) })
	}
	return channel, cleanup
}

func (s *submissionEvents) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("submission redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload), "redis")
	}
}

func (s *submissionEvents) consumeNATS(ctx context.Context) {
	// Each replica needs every event for its own streams, so the queue group
	// is scoped to the node.
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "gema-timers-"+s.nodeID, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data, "nats")
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats submissions subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain submission nats subscription")
		}
	}()
}

func (s *submissionEvents) handleEnvelope(payload []byte, source string) {
	var envelope submissionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Str("source", source).Msg("invalid submission event payload")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}

	observability.SubmissionEvents().WithLabelValues(source).Inc()
	s.broker.broadcast(envelope.Event)
}

func (b *submissionBroker) subscribe(submissionID uint, ch chan SubmissionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[submissionID]; !exists {
		b.subscribers[submissionID] = make(map[chan SubmissionEvent]struct{})
	}
	b.subscribers[submissionID][ch] = struct{}{}
}

func (b *submissionBroker) unsubscribe(submissionID uint, ch chan SubmissionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[submissionID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, submissionID)
		}
	}
}

func (b *submissionBroker) broadcast(event SubmissionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.SubmissionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, SubmissionEvent) {}
