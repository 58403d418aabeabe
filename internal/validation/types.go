package validation

// IssueLinkRequest is the payload for POST /links
type IssueLinkRequest struct {
	JobID            string `json:"job_id" validate:"required,max=128"`
	WorkspaceID      string `json:"workspace_id" validate:"required,max=128"`
	Policy           string `json:"policy,omitempty" validate:"omitempty,link_policy"`
	DeliveryContact  string `json:"delivery_contact,omitempty" validate:"omitempty,max=254"`
	SecondaryContact string `json:"secondary_contact,omitempty" validate:"omitempty,max=254"` // requires delivery_contact
	AssignedToTechID string `json:"assigned_to_tech_id,omitempty"`
}

// RegenerateLinkRequest is the payload for POST /jobs/:jobID/links/regenerate
type RegenerateLinkRequest struct {
	WorkspaceID      string `json:"workspace_id" validate:"required,max=128"`
	Policy           string `json:"policy,omitempty" validate:"omitempty,link_policy"`
	DeliveryContact  string `json:"delivery_contact,omitempty" validate:"omitempty,max=254"`
	SecondaryContact string `json:"secondary_contact,omitempty" validate:"omitempty,max=254"`
	AssignedToTechID string `json:"assigned_to_tech_id,omitempty"`
}

// ExtendLinkRequest is the payload for POST /links/:token/extend
type ExtendLinkRequest struct {
	Policy string `json:"policy" validate:"required,link_policy"`
}

// LifecycleRequest is the payload for POST /links/:token/lifecycle
type LifecycleRequest struct {
	Stage    string            `json:"stage" validate:"required,lifecycle_stage"`
	Metadata map[string]string `json:"metadata,omitempty" validate:"omitempty,max=20"`
}

// FlagRequest is the payload for POST /links/:token/flag
type FlagRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

// VerifyCodeRequest is the payload for POST /access-codes/verify
type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required,max=4096"`
}
