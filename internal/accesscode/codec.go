// Package accesscode encodes and decodes the shareable access-code strings
// that bind a link to one job.
//
// A code is integrity protected, not confidential: anyone can read the
// fields, but only a holder of the checksum key can mint a code whose
// checksum matches its job id.
package accesscode

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/imrishuroy/fieldlink/internal/errs"
)

// AccessCode is the decoded content of a code string.
type AccessCode struct {
	JobID            string `json:"j"`
	Checksum         string `json:"c"`
	DeliveryContact  string `json:"d"`
	SecondaryContact string `json:"s,omitempty"`
	IssuedAt         int64  `json:"t,omitempty"` // epoch ms, 0 when absent
}

// IssuedTime returns the embedded issuance time, or false when absent.
func (a AccessCode) IssuedTime() (time.Time, bool) {
	if a.IssuedAt == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(a.IssuedAt), true
}

// Complete reports whether every required field is present.
func (a AccessCode) Complete() bool {
	return a.JobID != "" && a.Checksum != "" && a.DeliveryContact != ""
}

// Codec packs and unpacks access codes.
type Codec struct {
	sum     *Checksummer
	nowFunc func() time.Time
}

func NewCodec(sum *Checksummer) *Codec {
	return &Codec{sum: sum, nowFunc: time.Now}
}

// WithClock returns a copy of the codec that stamps codes with now().
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{sum: c.sum, nowFunc: now}
}

// Checksummer exposes the codec's checksum utility.
func (c *Codec) Checksummer() *Checksummer {
	return c.sum
}

// Encode builds a code for jobID stamped with the current time.
func (c *Codec) Encode(jobID, deliveryContact, secondaryContact string) (string, error) {
	if strings.TrimSpace(jobID) == "" || strings.TrimSpace(deliveryContact) == "" {
		return "", errs.New(errs.CodeMissingParams, "job id and delivery contact are required")
	}
	return Pack(AccessCode{
		JobID:            jobID,
		Checksum:         c.sum.Sum(jobID),
		DeliveryContact:  deliveryContact,
		SecondaryContact: secondaryContact,
		IssuedAt:         c.nowFunc().UnixMilli(),
	})
}

// Decode unpacks code and requires jobId, checksum and deliveryContact.
// Missing optional fields are allowed.
func (c *Codec) Decode(code string) (AccessCode, error) {
	ac, err := Unpack(code)
	if err != nil {
		return AccessCode{}, err
	}
	if !ac.Complete() {
		return AccessCode{}, errs.New(errs.CodeMalformed, "access code is missing required fields")
	}
	return ac, nil
}

// Pack serializes ac without recomputing its checksum.
func Pack(ac AccessCode) (string, error) {
	b, err := json.Marshal(ac)
	if err != nil {
		return "", errs.Newf(errs.CodeMalformed, "encode access code: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Unpack deserializes code without checking required fields. It fails only
// when the string is not a packed AccessCode at all.
func Unpack(code string) (AccessCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return AccessCode{}, errs.New(errs.CodeMalformed, "empty access code")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(code, "="))
	if err != nil {
		return AccessCode{}, errs.New(errs.CodeMalformed, "access code is not valid base64url")
	}
	var ac AccessCode
	if err := json.Unmarshal(raw, &ac); err != nil {
		return AccessCode{}, errs.New(errs.CodeMalformed, "access code payload is not readable")
	}
	return ac, nil
}
