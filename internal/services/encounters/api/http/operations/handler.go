package operations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/platform/requestctx"
	"github.com/louisbranch/opsroom/internal/platform/timeouts"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Service is the encounter use-case surface the handler serves.
type Service interface {
	CreateEncounter(ctx context.Context, in domain.CreateEncounterInput) (domain.CreatedEncounter, error)
	SubmitAction(ctx context.Context, in domain.SubmitActionInput) (domain.SubmitActionResult, error)
	ResolveTurn(ctx context.Context, in domain.ResolveTurnInput) (domain.TurnResolution, error)
	GetTurnResolution(ctx context.Context, encounterID, turnID, callerUserID string) (domain.TurnResolution, error)
	ListSubmissions(ctx context.Context, encounterID, turnID, callerUserID string) ([]domain.SubmissionView, error)
	AuthorizeWatch(ctx context.Context, encounterID, callerUserID string) error
}

// Subscriber opens live event subscriptions.
type Subscriber interface {
	Subscribe(encounterID string) *live.Subscription
}

// Config wires the handler dependencies.
type Config struct {
	Service  Service
	Live     Subscriber
	Verifier *TokenVerifier
	Logger   *slog.Logger
	// OriginPatterns lists hosts allowed to open the live websocket
	// cross-origin. Same-origin requests are always accepted.
	OriginPatterns []string
	// RequestTimeout bounds each API call; zero uses timeouts.Request.
	RequestTimeout time.Duration
}

// Handler serves the encounter API.
type Handler struct {
	service        Service
	live           Subscriber
	verifier       *TokenVerifier
	logger         *slog.Logger
	originPatterns []string
	requestTimeout time.Duration
}

// NewHandler builds the routed, instrumented HTTP handler.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("encounter service is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	h := &Handler{
		service:        cfg.Service,
		live:           cfg.Live,
		verifier:       cfg.Verifier,
		logger:         cfg.Logger,
		originPatterns: cfg.OriginPatterns,
		requestTimeout: cfg.RequestTimeout,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.requestTimeout <= 0 {
		h.requestTimeout = timeouts.Request
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/operations/encounters", h.requireAuth(false, h.createEncounter))
	mux.HandleFunc("POST /api/operations/encounters/{encounterID}/submissions", h.requireAuth(false, h.submitAction))
	mux.HandleFunc("POST /api/operations/encounters/{encounterID}/resolve", h.requireAuth(false, h.resolveTurn))
	mux.HandleFunc("GET /api/operations/encounters/{encounterID}/turns/{turnID}", h.requireAuth(false, h.getTurnResolution))
	mux.HandleFunc("GET /api/operations/encounters/{encounterID}/turns/{turnID}/submissions", h.requireAuth(false, h.listSubmissions))
	mux.HandleFunc("GET /api/operations/encounters/{encounterID}/live", h.requireAuth(true, h.watch))

	return otelhttp.NewHandler(h.recoverPanic(withLocale(mux)), "encounters.http"), nil
}

func (h *Handler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

type participantRequest struct {
	CharacterID string `json:"character_id"`
	Team        string `json:"team"`
}

type createEncounterRequest struct {
	OperationID  string               `json:"operation_id"`
	Name         string               `json:"name"`
	Participants []participantRequest `json:"participants"`
}

func (h *Handler) createEncounter(w http.ResponseWriter, r *http.Request) {
	var req createEncounterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := domain.CreateEncounterInput{
		OperationID: req.OperationID,
		Name:        req.Name,
		GMUserID:    requestctx.UserIDFromContext(r.Context()),
	}
	for _, p := range req.Participants {
		in.Participants = append(in.Participants, domain.ParticipantInput{CharacterID: p.CharacterID, Team: p.Team})
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()
	created, err := h.service.CreateEncounter(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, created)
}

type submitActionRequest struct {
	TurnID     string   `json:"turn_id"`
	ActorID    string   `json:"actor_id"`
	AbilityID  string   `json:"ability_id"`
	ActionType string   `json:"action_type"`
	Tier       string   `json:"tier"`
	TargetID   string   `json:"target_id"`
	TargetStat string   `json:"target_stat"`
	BaseDamage int      `json:"base_damage"`
	Multiplier *float64 `json:"multiplier"`
}

func (h *Handler) submitAction(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "dry_run must be a boolean",
				map[string]string{"Reason": "dry_run must be a boolean"}))
			return
		}
		dryRun = parsed
	}
	var req submitActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()
	result, err := h.service.SubmitAction(ctx, domain.SubmitActionInput{
		EncounterID:  r.PathValue("encounterID"),
		TurnID:       req.TurnID,
		ActorID:      req.ActorID,
		AbilityID:    req.AbilityID,
		ActionType:   req.ActionType,
		Tier:         req.Tier,
		TargetID:     req.TargetID,
		TargetStat:   req.TargetStat,
		BaseDamage:   req.BaseDamage,
		Multiplier:   req.Multiplier,
		CallerUserID: requestctx.UserIDFromContext(r.Context()),
		DryRun:       dryRun,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.DryRun {
		status = http.StatusOK
	}
	h.respond(w, r, status, result)
}

type resolveTurnRequest struct {
	TurnID         string            `json:"turn_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Judgement      *domain.Judgement `json:"judgement"`
}

func (h *Handler) resolveTurn(w http.ResponseWriter, r *http.Request) {
	var req resolveTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()
	result, err := h.service.ResolveTurn(ctx, domain.ResolveTurnInput{
		EncounterID:    r.PathValue("encounterID"),
		TurnID:         req.TurnID,
		IdempotencyKey: req.IdempotencyKey,
		Judgement:      req.Judgement,
		CallerUserID:   requestctx.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, result)
}

func (h *Handler) getTurnResolution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()
	result, err := h.service.GetTurnResolution(ctx,
		r.PathValue("encounterID"),
		r.PathValue("turnID"),
		requestctx.UserIDFromContext(r.Context()),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, result)
}

type submissionsResponse struct {
	Submissions []domain.SubmissionView `json:"submissions"`
}

func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()
	subs, err := h.service.ListSubmissions(ctx,
		r.PathValue("encounterID"),
		r.PathValue("turnID"),
		requestctx.UserIDFromContext(r.Context()),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []domain.SubmissionView{}
	}
	h.respond(w, r, http.StatusOK, submissionsResponse{Submissions: subs})
}
