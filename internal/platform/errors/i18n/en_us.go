package i18n

var enUSMessages = map[Code]string{
	"UNKNOWN":                            "An unexpected error occurred",
	"INVALID_ARGUMENT":                   "Invalid request: {{.Reason}}",
	"UNAUTHENTICATED":                    "Sign in to continue",
	"PERMISSION_DENIED":                  "You are not allowed to do that",
	"INSUFFICIENT_COST":                  "Insufficient {{.Resource}}: have {{.Have}}, need {{.Need}}",
	"INVALID_COST":                       "Ability cost must not be negative",
	"ENCOUNTER_NOT_FOUND":                "Encounter not found",
	"ENCOUNTER_CLOSED":                   "This encounter is already closed",
	"TURN_NOT_FOUND":                     "Turn not found",
	"TURN_NOT_OPEN":                      "This turn is no longer accepting actions",
	"NOT_PARTICIPANT":                    "Character {{.CharacterID}} is not part of this encounter",
	"ABILITY_NOT_FOUND":                  "Ability not found for this character",
	"SUBMISSION_EXISTS":                  "An action was already submitted for this turn",
	"SUBMISSION_INVALID_ACTION":          "Unknown action type {{.Value}}",
	"SUBMISSION_INVALID_TIER":            "Unknown ability tier {{.Value}}",
	"SUBMISSION_INVALID_TARGET_STAT":     "Unknown target stat {{.Value}}",
	"SUBMISSION_DAMAGE_OUT_OF_RANGE":     "Base damage must be between {{.Min}} and {{.Max}}",
	"SUBMISSION_MULTIPLIER_OUT_OF_RANGE": "Multiplier must be between {{.Min}} and {{.Max}}",
	"CHARACTER_NOT_FOUND":                "Character {{.CharacterID}} could not be loaded",
	"IDEMPOTENCY_KEY_REQUIRED":           "An idempotency key is required",
	"IDEMPOTENCY_CONFLICT":               "This turn was already resolved with a different request",
	"JUDGEMENT_INVALID":                  "Invalid judgement: {{.Reason}}",
	"RESOLUTION_NOT_FOUND":               "This turn has not been resolved yet",
	"NOT_FOUND":                          "Not found",
}
