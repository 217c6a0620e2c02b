package testutil

import (
	"net/http"
	"testing"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/store"
	"github.com/karuna-health/intake/internal/util"
)

func TestNewTestServer(t *testing.T) {
	server := NewTestServer()
	if server == nil {
		t.Fatal("NewTestServer returned nil")
	}
	if server.Handler() == nil {
		t.Error("Expected server handler to be created, got nil")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{
			name:   "GET request with no body",
			method: http.MethodGet,
			url:    "/forms",
			body:   nil,
		},
		{
			name:   "POST request with JSON body",
			method: http.MethodPost,
			url:    "/sessions/x/answers",
			body:   models.UpdateAnswerRequest{Field: "firstName", Value: "Ada"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
		})
	}
}

func TestMustMarshalRoundTrip(t *testing.T) {
	in := models.UpdateAnswerRequest{Field: "email", Value: "ada@example.com"}
	data := MustMarshalJSON(t, in)
	if len(data) == 0 {
		t.Fatal("Expected non-empty JSON data")
	}

	var out models.UpdateAnswerRequest
	MustUnmarshalJSON(t, data, &out)
	if out.Field != in.Field || out.Value != in.Value {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestAssertEventCount(t *testing.T) {
	st := store.NewInMemoryStore()
	defer st.Close()

	AssertEventCount(t, st, 0, "empty store")

	if err := st.AddEvent(models.AbandonmentEvent{
		SessionID: util.GenerateSessionID("wl"),
		FormID:    "weight-loss",
	}); err != nil {
		t.Fatalf("Failed to add test event: %v", err)
	}
	AssertEventCount(t, st, 1, "one event")
}
