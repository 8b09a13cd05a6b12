package models

// CreateScriptRequest is the POST /api/scripts body.
type CreateScriptRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Endpoint      string  `json:"endpoint" validate:"required,max=100"`
	Code          string  `json:"code"`
	TestParams    string  `json:"testParams"`
	TriggerConfig string  `json:"triggerConfig"`
	DebugEnabled  *bool   `json:"debugEnabled,omitempty"`
	DebugCode     *string `json:"debugCode,omitempty"`
}

// UpdateScriptRequest is the PUT /api/scripts/:id body. Nil fields are left
// untouched.
type UpdateScriptRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Endpoint      *string `json:"endpoint,omitempty" validate:"omitempty,max=100"`
	Code          *string `json:"code,omitempty"`
	TestParams    *string `json:"testParams,omitempty"`
	TriggerConfig *string `json:"triggerConfig,omitempty"`
	DebugEnabled  *bool   `json:"debugEnabled,omitempty"`
	DebugCode     *string `json:"debugCode,omitempty"`
}

// UpdateDebugDraftRequest is the PUT /api/scripts/:id/debug body.
type UpdateDebugDraftRequest struct {
	DebugCode    *string `json:"debugCode,omitempty"`
	DebugEnabled *bool   `json:"debugEnabled,omitempty"`
}

// CreateServiceAccountRequest is the POST /api/service-accounts body.
type CreateServiceAccountRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateDebugAccessRequest is the PUT /api/debug-access body.
type UpdateDebugAccessRequest struct {
	Enabled   bool     `json:"enabled"`
	CIDRs     []string `json:"cidrs"`
	ServiceID string   `json:"serviceId"`
}
