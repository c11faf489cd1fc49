// Package errors provides structured error handling with i18n support.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Cost errors
	CodeInsufficientCost Code = "INSUFFICIENT_COST"
	CodeInvalidCost      Code = "INVALID_COST"

	// Encounter errors
	CodeEncounterNotFound Code = "ENCOUNTER_NOT_FOUND"
	CodeEncounterClosed   Code = "ENCOUNTER_CLOSED"
	CodeTurnNotFound      Code = "TURN_NOT_FOUND"
	CodeTurnNotOpen       Code = "TURN_NOT_OPEN"
	CodeNotParticipant    Code = "NOT_PARTICIPANT"
	CodeAbilityNotFound   Code = "ABILITY_NOT_FOUND"

	// Submission errors
	CodeSubmissionExists          Code = "SUBMISSION_EXISTS"
	CodeSubmissionInvalidAction   Code = "SUBMISSION_INVALID_ACTION"
	CodeSubmissionInvalidTier     Code = "SUBMISSION_INVALID_TIER"
	CodeSubmissionInvalidStat     Code = "SUBMISSION_INVALID_TARGET_STAT"
	CodeSubmissionDamageRange     Code = "SUBMISSION_DAMAGE_OUT_OF_RANGE"
	CodeSubmissionMultiplierRange Code = "SUBMISSION_MULTIPLIER_OUT_OF_RANGE"

	// Resolution errors
	CodeCharacterNotFound      Code = "CHARACTER_NOT_FOUND"
	CodeIdempotencyKeyRequired Code = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotencyConflict    Code = "IDEMPOTENCY_CONFLICT"
	CodeJudgementInvalid       Code = "JUDGEMENT_INVALID"
	CodeResolutionNotFound     Code = "RESOLUTION_NOT_FOUND"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidArgument,
		CodeInvalidCost,
		CodeSubmissionInvalidAction,
		CodeSubmissionInvalidTier,
		CodeSubmissionInvalidStat,
		CodeSubmissionDamageRange,
		CodeSubmissionMultiplierRange,
		CodeIdempotencyKeyRequired,
		CodeJudgementInvalid,
		CodeNotParticipant:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInsufficientCost,
		CodeEncounterClosed,
		CodeTurnNotOpen:
		return codes.FailedPrecondition

	// AlreadyExists - idempotency and uniqueness constraints
	case CodeSubmissionExists,
		CodeIdempotencyConflict:
		return codes.AlreadyExists

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeEncounterNotFound,
		CodeTurnNotFound,
		CodeAbilityNotFound,
		CodeResolutionNotFound:
		return codes.NotFound

	case CodeUnauthenticated:
		return codes.Unauthenticated
	case CodePermissionDenied:
		return codes.PermissionDenied

	// A missing character row during resolution is a data integrity fault.
	case CodeCharacterNotFound:
		return codes.Internal

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes through their gRPC class.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
