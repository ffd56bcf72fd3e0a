package dto

type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// BatchResult reports one entry's outcome: the stored record id, or discarded.
type BatchResult struct {
	RecordID  string `json:"record_id,omitempty"`
	Discarded bool   `json:"discarded,omitempty"`
}
