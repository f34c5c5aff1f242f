package structs

// SubmitItem is a single job request inside a batch submission
type SubmitItem struct {
	SourceURL string         `json:"source_url" validate:"required,httpurl,max=2048"`
	Operation string         `json:"operation" validate:"required,max=64"`
	Params    map[string]any `json:"params,omitempty"`
}

// SubmitBatchBody is the batch submission request.
// UserID and Email come from the authenticated caller, never from the payload.
type SubmitBatchBody struct {
	UserID         string       `json:"-"`
	Email          string       `json:"-"`
	Items          []SubmitItem `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string       `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// ListParams selects a page of a user's batches
type ListParams struct {
	UserID string `json:"-"`
	Cursor string `json:"cursor" form:"cursor"`
	Limit  int    `json:"limit" form:"limit"`
}
