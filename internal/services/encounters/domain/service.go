package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/platform/id"
	"github.com/louisbranch/opsroom/internal/platform/telemetry/metrics"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/opsroom/internal/services/encounters/domain"

// Submission bounds.
const (
	MinBaseDamage = 0
	MaxBaseDamage = 200
	MinMultiplier = 0.0
	MaxMultiplier = 3.0
)

// Publisher receives live encounter events.
type Publisher interface {
	Publish(event live.Event)
}

// Service implements encounter use-cases.
type Service struct {
	store     storage.Store
	publisher Publisher
	clock     func() time.Time
	newID     func() (string, error)
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Encounters
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides turn id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithPublisher sets the live event sink.
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the instruments used to record activity.
func WithMetrics(m *metrics.Encounters) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService creates an encounter service backed by store.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  time.Now,
		newID:  id.NewID,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewEncounters(nil)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) publish(event live.Event) {
	if s.publisher == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now()
	}
	s.publisher.Publish(event)
}

func (s *Service) configured() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("encounter store is not configured")
	}
	return nil
}

// startSpan starts a span tagged with the encounter id.
func (s *Service) startSpan(ctx context.Context, name, encounterID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("encounter.id", encounterID)))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(apperrors.CodeOf(err)))
	}
	span.End()
}

func invalidArgument(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, reason, map[string]string{"Reason": reason})
}

func invalidValue(code apperrors.Code, field, value string) error {
	return apperrors.WithMetadata(code, fmt.Sprintf("invalid %s %q", field, value), map[string]string{"Value": value})
}

func outOfRange(code apperrors.Code, field string, min, max float64) error {
	return apperrors.WithMetadata(
		code,
		fmt.Sprintf("%s must be between %v and %v", field, min, max),
		map[string]string{
			"Min": strconv.FormatFloat(min, 'f', -1, 64),
			"Max": strconv.FormatFloat(max, 'f', -1, 64),
		},
	)
}

func notParticipant(characterID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeNotParticipant,
		fmt.Sprintf("character %s is not a participant", characterID),
		map[string]string{"CharacterID": characterID},
	)
}

// storageError maps storage.ErrNotFound to notFound and wraps anything else as internal.
func storageError(err error, notFound apperrors.Code, op string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(notFound, op+": not found", err)
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnknown, op, err)
}

// loadEncounter returns the encounter or ENCOUNTER_NOT_FOUND.
func (s *Service) loadEncounter(ctx context.Context, encounterID string) (storage.EncounterRecord, error) {
	encounter, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return storage.EncounterRecord{}, storageError(err, apperrors.CodeEncounterNotFound, "get encounter")
	}
	return encounter, nil
}

// loadTurn returns the turn or TURN_NOT_FOUND when the turn/encounter pairing is absent.
func (s *Service) loadTurn(ctx context.Context, encounterID, turnID string) (storage.TurnRecord, error) {
	turn, err := s.store.GetTurn(ctx, encounterID, turnID)
	if err != nil {
		return storage.TurnRecord{}, storageError(err, apperrors.CodeTurnNotFound, "get turn")
	}
	return turn, nil
}

func requireGM(encounter storage.EncounterRecord, callerUserID string) error {
	if strings.TrimSpace(callerUserID) == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "caller is required")
	}
	if encounter.GMUserID != callerUserID {
		return apperrors.New(apperrors.CodePermissionDenied, "only the encounter GM may do this")
	}
	return nil
}

func findParticipant(roster []storage.ParticipantRecord, characterID string) (storage.ParticipantRecord, bool) {
	for _, p := range roster {
		if p.CharacterID == characterID {
			return p, true
		}
	}
	return storage.ParticipantRecord{}, false
}
