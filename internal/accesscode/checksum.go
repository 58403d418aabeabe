package accesscode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// checksumDomain separates access-code digests from any other use of the key.
const checksumDomain = "fieldlink/access-code/v1"

// checksumBytes is the number of digest bytes kept in a code.
const checksumBytes = 8

// Checksummer computes keyed digests of job identifiers.
//
// The digest is deterministic: the same jobID always yields the same checksum,
// so a code can be validated repeatedly without any server-side state.
type Checksummer struct {
	key []byte
}

func NewChecksummer(key string) *Checksummer {
	return &Checksummer{key: []byte(key)}
}

// Sum returns the hex checksum for jobID.
// Format: hex(HMAC-SHA256(key, domain + 0x00 + jobID)[:8])
func (c *Checksummer) Sum(jobID string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(checksumDomain))
	mac.Write([]byte{0x00})
	mac.Write([]byte(jobID))
	return hex.EncodeToString(mac.Sum(nil)[:checksumBytes])
}

// Verify reports whether checksum matches jobID, in constant time.
func (c *Checksummer) Verify(jobID, checksum string) bool {
	return hmac.Equal([]byte(c.Sum(jobID)), []byte(checksum))
}
