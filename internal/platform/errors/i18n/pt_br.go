package i18n

var ptBRMessages = map[Code]string{
	"UNKNOWN":                            "Ocorreu um erro inesperado",
	"INVALID_ARGUMENT":                   "Requisição inválida: {{.Reason}}",
	"UNAUTHENTICATED":                    "Entre para continuar",
	"PERMISSION_DENIED":                  "Você não tem permissão para isso",
	"INSUFFICIENT_COST":                  "{{.Resource}} insuficiente: possui {{.Have}}, precisa de {{.Need}}",
	"INVALID_COST":                       "O custo da habilidade não pode ser negativo",
	"ENCOUNTER_NOT_FOUND":                "Encontro não encontrado",
	"ENCOUNTER_CLOSED":                   "Este encontro já foi encerrado",
	"TURN_NOT_FOUND":                     "Turno não encontrado",
	"TURN_NOT_OPEN":                      "Este turno não aceita mais ações",
	"NOT_PARTICIPANT":                    "O personagem {{.CharacterID}} não participa deste encontro",
	"ABILITY_NOT_FOUND":                  "Habilidade não encontrada para este personagem",
	"SUBMISSION_EXISTS":                  "Uma ação já foi enviada neste turno",
	"SUBMISSION_INVALID_ACTION":          "Tipo de ação desconhecido {{.Value}}",
	"SUBMISSION_INVALID_TIER":            "Nível de habilidade desconhecido {{.Value}}",
	"SUBMISSION_INVALID_TARGET_STAT":     "Atributo alvo desconhecido {{.Value}}",
	"SUBMISSION_DAMAGE_OUT_OF_RANGE":     "O dano base deve estar entre {{.Min}} e {{.Max}}",
	"SUBMISSION_MULTIPLIER_OUT_OF_RANGE": "O multiplicador deve estar entre {{.Min}} e {{.Max}}",
	"CHARACTER_NOT_FOUND":                "Não foi possível carregar o personagem {{.CharacterID}}",
	"IDEMPOTENCY_KEY_REQUIRED":           "Uma chave de idempotência é obrigatória",
	"IDEMPOTENCY_CONFLICT":               "Este turno já foi resolvido por outra requisição",
	"JUDGEMENT_INVALID":                  "Julgamento inválido: {{.Reason}}",
	"RESOLUTION_NOT_FOUND":               "Este turno ainda não foi resolvido",
	"NOT_FOUND":                          "Não encontrado",
}
