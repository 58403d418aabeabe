package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIssueLinkRequest_Valid(t *testing.T) {
	v := New()

	req := IssueLinkRequest{
		JobID:            "job-123",
		WorkspaceID:      "ws-1",
		Policy:           "extended",
		DeliveryContact:  "+16502530000",
		SecondaryContact: "client@example.com",
	}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	// policy may be omitted
	req.Policy = ""
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid without policy, got error: %v", err)
	}
}

func TestIssueLinkRequest_UnknownPolicy(t *testing.T) {
	v := New()
	req := IssueLinkRequest{JobID: "job-123", WorkspaceID: "ws-1", Policy: "forever"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for unknown policy, got nil")
	}
}

func TestIssueLinkRequest_SecondaryNeedsDelivery(t *testing.T) {
	v := New()
	req := IssueLinkRequest{JobID: "job-123", WorkspaceID: "ws-1", SecondaryContact: "client@example.com"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for secondary contact without delivery contact")
	}
	reg := RegenerateLinkRequest{WorkspaceID: "ws-1", SecondaryContact: "client@example.com"}
	if err := v.Struct(reg); err == nil {
		t.Fatal("expected validation error on regenerate as well")
	}
}

func TestIssueLinkRequest_MissingFields(t *testing.T) {
	v := New()
	if err := v.Struct(IssueLinkRequest{}); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestLifecycleRequest_Stage(t *testing.T) {
	v := New()
	if err := v.Struct(LifecycleRequest{Stage: "delivered"}); err != nil {
		t.Fatalf("expected valid stage, got %v", err)
	}
	for _, stage := range []string{"", "archived"} {
		if err := v.Struct(LifecycleRequest{Stage: stage}); err == nil {
			t.Fatalf("expected error for stage %q", stage)
		}
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"policy":"long"}`, http.StatusOK},
		{"bad json", `{"policy":`, http.StatusBadRequest},
		{"invalid", `{"policy":"never"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req ExtendLinkRequest
			if err := BindAndValidate(c, &req, v); err != nil {
				if w.Code != tc.status {
					t.Fatalf("status = %d, want %d", w.Code, tc.status)
				}
				return
			}
			if tc.status != http.StatusOK {
				t.Fatalf("expected failure with %d", tc.status)
			}
		})
	}
}
