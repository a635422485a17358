package domain

// ============================================================
// Consultor IA
// ============================================================

// AdvisorContext é o contexto financeiro enviado ao agente externo.
// O agente é opaco: recebe este objeto e devolve texto.
type AdvisorContext struct {
	AccountID    string           `json:"account_id"`
	Month        string           `json:"month"`
	Stats        *AccountStats    `json:"stats"`
	Categories   *CategoryStats   `json:"categories"`
	OpenInvoices []InvoiceSummary `json:"open_invoices"`
}

// AgentRequest é o payload enviado para o serviço do Agente IA.
type AgentRequest struct {
	AccountID string          `json:"account_id"`
	Query     string          `json:"query"`
	Context   *AdvisorContext `json:"context"`
}

// AgentResponse contém a resposta do Agente IA.
type AgentResponse struct {
	Answer     string     `json:"answer"`
	TokensUsed TokenUsage `json:"tokens_used"`
}

// TokenUsage rastreia o consumo de tokens do LLM para monitoramento de custos.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AdvisorRequest é o body do POST /v1/accounts/{accountId}/advisor.
type AdvisorRequest struct {
	Message string `json:"message"`
	Month   string `json:"month,omitempty"`
}

// AdvisorResponse é a resposta final do endpoint do consultor.
type AdvisorResponse struct {
	Answer    string `json:"answer"`
	Month     string `json:"month"`
	LatencyMs int64  `json:"latencyMs"`
}
