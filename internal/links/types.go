package links

import (
	"strings"
	"time"

	"github.com/imrishuroy/fieldlink/internal/errs"
)

// Policy selects how long an issued token lives.
type Policy string

const (
	PolicyShort       Policy = "short"
	PolicyStandard    Policy = "standard"
	PolicyExtended    Policy = "extended"
	PolicyLong        Policy = "long"
	PolicyUntilSealed Policy = "until_sealed"
)

// untilSealedTTL stands in for "no expiry"; the link dies when its job is sealed.
const untilSealedTTL = 100 * 365 * 24 * time.Hour

var policyTTL = map[Policy]time.Duration{
	PolicyShort:       24 * time.Hour,
	PolicyStandard:    7 * 24 * time.Hour,
	PolicyExtended:    30 * 24 * time.Hour,
	PolicyLong:        90 * 24 * time.Hour,
	PolicyUntilSealed: untilSealedTTL,
}

// ParsePolicy maps a policy name to a Policy. Empty means PolicyStandard.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PolicyStandard, nil
	}
	if _, ok := policyTTL[p]; !ok {
		return "", errs.Newf(errs.CodeInvalidPolicy, "unknown expiration policy %q", s)
	}
	return p, nil
}

// TTL returns the lifetime granted by p.
func (p Policy) TTL() time.Duration {
	if d, ok := policyTTL[p]; ok {
		return d
	}
	return policyTTL[PolicyStandard]
}

// Status is the derived state of a link.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusUsed    Status = "used"
	StatusSealed  Status = "sealed"
)

// MagicLink is one issued token. Status stored here is only "active" or
// "revoked"; everything else is derived by Manager.Status.
type MagicLink struct {
	Token            string     `json:"token" dynamodbav:"token"`
	JobID            string     `json:"job_id" dynamodbav:"job_id"`
	WorkspaceID      string     `json:"workspace_id" dynamodbav:"workspace_id"`
	Policy           Policy     `json:"policy" dynamodbav:"policy"`
	ExpiresAt        time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	Status           Status     `json:"status" dynamodbav:"status"`
	CreatedAt        time.Time  `json:"created_at" dynamodbav:"created_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at,omitempty"`
	FirstAccessedAt  *time.Time `json:"first_accessed_at,omitempty" dynamodbav:"first_accessed_at,omitempty"`
	AssignedToTechID string     `json:"assigned_to_tech_id,omitempty" dynamodbav:"assigned_to_tech_id,omitempty"`

	LifecycleStage Stage      `json:"lifecycle_stage,omitempty" dynamodbav:"lifecycle_stage,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty" dynamodbav:"delivered_at,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty" dynamodbav:"opened_at,omitempty"`
	JobStartedAt   *time.Time `json:"job_started_at,omitempty" dynamodbav:"job_started_at,omitempty"`
	JobCompletedAt *time.Time `json:"job_completed_at,omitempty" dynamodbav:"job_completed_at,omitempty"`
	ReportSentAt   *time.Time `json:"report_sent_at,omitempty" dynamodbav:"report_sent_at,omitempty"`

	// StageMetadata holds caller-supplied details per stage (e.g. carrier receipt ids).
	StageMetadata map[string]map[string]string `json:"stage_metadata,omitempty" dynamodbav:"stage_metadata,omitempty"`

	FlaggedAt          *time.Time `json:"flagged_at,omitempty" dynamodbav:"flagged_at,omitempty"`
	FlagReason         string     `json:"flag_reason,omitempty" dynamodbav:"flag_reason,omitempty"`
	FlagAcknowledgedAt *time.Time `json:"flag_acknowledged_at,omitempty" dynamodbav:"flag_acknowledged_at,omitempty"`
}

// clone returns a copy that shares no maps with l.
func (l *MagicLink) clone() *MagicLink {
	if l == nil {
		return nil
	}
	out := *l
	if l.StageMetadata != nil {
		out.StageMetadata = make(map[string]map[string]string, len(l.StageMetadata))
		for stage, md := range l.StageMetadata {
			cp := make(map[string]string, len(md))
			for k, v := range md {
				cp[k] = v
			}
			out.StageMetadata[stage] = cp
		}
	}
	return &out
}

// LinkData is what Issue and Regenerate hand back to the caller.
type LinkData struct {
	Token      string    `json:"token"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessCode string    `json:"access_code,omitempty"`
}

// IssueRequest describes a new link.
type IssueRequest struct {
	JobID       string
	WorkspaceID string
	Policy      Policy

	// Optional. When DeliveryContact is set the URL embeds an access code.
	DeliveryContact  string
	SecondaryContact string
	AssignedToTechID string
}

// AttentionItem is a link that was sent but not opened in time.
type AttentionItem struct {
	Link   *MagicLink    `json:"link"`
	Age    time.Duration `json:"age"`
	Urgent bool          `json:"urgent"`
}

func timePtr(t time.Time) *time.Time { return &t }
