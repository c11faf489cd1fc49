package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness or state precondition failed.
	ErrConflict = errors.New("record conflict")
	// ErrInsufficientResources indicates a cost deduction would drive a pool negative.
	ErrInsufficientResources = errors.New("insufficient resources")
)

// Encounter statuses.
const (
	EncounterActive = "active"
	EncounterClosed = "closed"
)

// Turn statuses.
const (
	TurnOpen     = "open"
	TurnResolved = "resolved"
)

// CloseReasonDefeat is recorded when a participant's HP reaches zero.
const CloseReasonDefeat = "defeat"

// CharacterRecord stores one character's resource pools.
type CharacterRecord struct {
	ID          string
	OwnerUserID string
	Name        string
	HPCurrent   int
	HPMax       int
	WILLCurrent int
	WILLMax     int
	UpdatedAt   time.Time
}

// Resources returns the character's current pools.
func (c CharacterRecord) Resources() engine.Resources {
	return engine.Resources{HP: c.HPCurrent, WILL: c.WILLCurrent}
}

// AbilityRecord stores one catalog ability owned by a character.
type AbilityRecord struct {
	ID          string
	CharacterID string
	Name        string
	Tier        engine.Tier
	ActionType  engine.ActionType
	CostHP      int
	CostWILL    int
}

// Cost returns the ability cost.
func (a AbilityRecord) Cost() engine.Cost {
	return engine.Cost{HP: a.CostHP, WILL: a.CostWILL}
}

// EncounterRecord stores one encounter.
type EncounterRecord struct {
	ID          string
	OperationID string
	Name        string
	Status      string
	CloseReason string
	GMUserID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// ParticipantRecord stores one encounter roster row.
type ParticipantRecord struct {
	EncounterID     string
	CharacterID     string
	Team            string
	SubmissionOrder int
	IsActive        bool
}

// TurnRecord stores one encounter turn.
type TurnRecord struct {
	ID            string
	EncounterID   string
	TurnNumber    int
	Status        string
	JudgementJSON []byte
	OpenedAt      time.Time
	ResolvedAt    *time.Time
}

// SubmissionRecord stores one participant action for a turn.
type SubmissionRecord struct {
	TurnID      string
	ActorID     string
	AbilityID   string
	ActionType  engine.ActionType
	Tier        engine.Tier
	TargetID    string
	TargetStat  engine.Stat
	BaseDamage  int
	Multiplier  *float64
	CostHP      int
	CostWILL    int
	IsAutoFail  bool
	SubmittedBy string
	SubmittedAt time.Time
}

// ResolutionRecord stores one resolved turn keyed by idempotency key.
//
// The JSON columns hold the response payload so replays return exactly what
// the first call returned.
type ResolutionRecord struct {
	IdempotencyKey   string
	TurnID           string
	EncounterID      string
	ActionsJSON      []byte
	EffectsJSON      []byte
	ParticipantsJSON []byte
	SummaryJSON      []byte
	EncounterStatus  string
	NextTurnID       string
	ResolvedBy       string
	CreatedAt        time.Time
}

// EffectRecord is one row of the resolution audit trail.
type EffectRecord struct {
	IdempotencyKey string
	Seq            int
	SourceID       string
	TargetID       string
	TargetStat     engine.Stat
	Damage         int
	Reason         string
}

// CharacterDrain is the amount a resolution removed from a character's pools.
// Stores subtract it from the current row, clamping at zero, so changes
// committed after the resolution read its inputs are kept.
type CharacterDrain struct {
	CharacterID string
	HP          int
	WILL        int
}

// ResolutionWrite is everything ApplyResolution persists in one transaction.
type ResolutionWrite struct {
	Resolution ResolutionRecord
	// Judgement is stored on the resolved turn.
	Judgement  []byte
	AutoFail   []SubmissionRecord
	Characters []CharacterDrain
	Effects    []engine.Effect
	// CloseReason closes the encounter when set; otherwise NextTurn is opened.
	CloseReason string
	NextTurn    *TurnRecord
}

// CharacterStore persists characters and their abilities.
type CharacterStore interface {
	PutCharacter(ctx context.Context, character CharacterRecord) error
	GetCharacter(ctx context.Context, id string) (CharacterRecord, error)
	// ReadCharacterResources omits ids without a character row.
	ReadCharacterResources(ctx context.Context, ids []string) (map[string]engine.Resources, error)
	PutAbility(ctx context.Context, ability AbilityRecord) error
	GetAbility(ctx context.Context, id string) (AbilityRecord, error)
}

// EncounterStore persists encounters, rosters, and turns.
type EncounterStore interface {
	CreateEncounter(ctx context.Context, encounter EncounterRecord, participants []ParticipantRecord, firstTurn TurnRecord) error
	GetEncounter(ctx context.Context, id string) (EncounterRecord, error)
	// ListParticipants returns the roster ordered by submission order.
	ListParticipants(ctx context.Context, encounterID string) ([]ParticipantRecord, error)
	GetTurn(ctx context.Context, encounterID string, turnID string) (TurnRecord, error)
}

// SubmissionStore persists turn submissions.
type SubmissionStore interface {
	// CreateSubmission stores the row and deducts its cost from the actor in
	// one transaction. Duplicates return ErrConflict; a pool that cannot cover
	// the cost returns ErrInsufficientResources.
	CreateSubmission(ctx context.Context, submission SubmissionRecord) error
	ListSubmissions(ctx context.Context, turnID string) ([]SubmissionRecord, error)
}

// ResolutionStore persists turn resolutions.
type ResolutionStore interface {
	GetResolution(ctx context.Context, idempotencyKey string) (ResolutionRecord, error)
	GetResolutionByTurn(ctx context.Context, turnID string) (ResolutionRecord, error)
	ListResolutionEffects(ctx context.Context, idempotencyKey string) ([]EffectRecord, error)
	// ApplyResolution commits a resolution atomically. It returns ErrConflict
	// when the key is taken or the turn is no longer open.
	ApplyResolution(ctx context.Context, write ResolutionWrite) error
}

// Store is the full encounter persistence surface.
type Store interface {
	CharacterStore
	EncounterStore
	SubmissionStore
	ResolutionStore
	Close() error
}
