package http

// FailureBody is the error shape shared by every endpoint.
type FailureBody struct {
	OK          bool        `json:"ok"`
	Error       string      `json:"error"`
	ReasonCodes []string    `json:"reasonCodes"`
	Details     interface{} `json:"details,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"symbol"`
	Message string                 `json:"message,omitempty" example:"symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
