package accesscode

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/fieldlink/internal/errs"
)

func fixedCodec(t time.Time) *Codec {
	return NewCodec(NewChecksummer("test-key")).WithClock(func() time.Time { return t })
}

func TestChecksum_Deterministic(t *testing.T) {
	c := NewChecksummer("k1")
	for _, job := range []string{"J1", "job-42", "", "ünïcode"} {
		first := c.Sum(job)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, c.Sum(job))
		}
		assert.Len(t, first, checksumBytes*2)
		assert.True(t, c.Verify(job, first))
	}
}

func TestChecksum_Keyed(t *testing.T) {
	a := NewChecksummer("k1")
	b := NewChecksummer("k2")
	assert.NotEqual(t, a.Sum("J1"), b.Sum("J1"))
	assert.NotEqual(t, a.Sum("J1"), a.Sum("J2"))
	assert.False(t, a.Verify("J1", b.Sum("J1")))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := fixedCodec(now)

	cases := []struct {
		job, contact, secondary string
	}{
		{"J1", "+15551234567", ""},
		{"job/with/slashes", "tech@example.com", "client@example.com"},
		{"J-ü", "x", "y"},
	}
	for _, tc := range cases {
		code, err := c.Encode(tc.job, tc.contact, tc.secondary)
		require.NoError(t, err)
		assert.NotContains(t, code, "=")

		got, err := c.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, tc.job, got.JobID)
		assert.Equal(t, tc.contact, got.DeliveryContact)
		assert.Equal(t, tc.secondary, got.SecondaryContact)
		assert.Equal(t, c.Checksummer().Sum(tc.job), got.Checksum)
		issued, ok := got.IssuedTime()
		assert.True(t, ok)
		assert.True(t, issued.Equal(now))
	}
}

func TestEncode_RequiresFields(t *testing.T) {
	c := fixedCodec(time.Now())
	_, err := c.Encode("", "x", "")
	assert.True(t, errs.Is(err, errs.CodeMissingParams))
	_, err = c.Encode("J1", "  ", "")
	assert.True(t, errs.Is(err, errs.CodeMissingParams))
}

func TestDecode_Malformed(t *testing.T) {
	c := fixedCodec(time.Now())
	for _, bad := range []string{"", "!!!", base64.RawURLEncoding.EncodeToString([]byte("not json"))} {
		_, err := c.Decode(bad)
		assert.True(t, errs.Is(err, errs.CodeMalformed), bad)
	}

	partial, err := Pack(AccessCode{JobID: "J1", Checksum: "abc"})
	require.NoError(t, err)
	_, err = c.Decode(partial)
	assert.True(t, errs.Is(err, errs.CodeMalformed))

	// Unpack is lenient about required fields.
	ac, err := Unpack(partial)
	require.NoError(t, err)
	assert.Equal(t, "J1", ac.JobID)
	assert.False(t, ac.Complete())
}

func TestDecode_OptionalFieldsAbsent(t *testing.T) {
	c := fixedCodec(time.Now())
	code, err := Pack(AccessCode{JobID: "J1", Checksum: c.Checksummer().Sum("J1"), DeliveryContact: "x"})
	require.NoError(t, err)
	ac, err := c.Decode(code)
	require.NoError(t, err)
	_, ok := ac.IssuedTime()
	assert.False(t, ok)
	assert.Empty(t, ac.SecondaryContact)
}

func TestUnpack_ToleratesPadding(t *testing.T) {
	code, err := Pack(AccessCode{JobID: "J", Checksum: "c", DeliveryContact: "d"})
	require.NoError(t, err)
	_, err = Unpack(code + strings.Repeat("=", (4-len(code)%4)%4))
	assert.NoError(t, err)
}

func TestNormalizeContact(t *testing.T) {
	assert.Equal(t, "+16502530000", NormalizeContact("(650) 253-0000", "US"))
	assert.Equal(t, "+16502530000", NormalizeContact("+1 650 253 0000", "GB"))
	assert.Equal(t, "tech@example.com", NormalizeContact("  Tech@Example.COM ", "US"))
	assert.Equal(t, "dispatch-desk", NormalizeContact(" dispatch-desk ", "US"))
	assert.Equal(t, "", NormalizeContact("   ", "US"))
}
