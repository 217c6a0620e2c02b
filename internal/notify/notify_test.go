package notify

import (
	"context"
	"testing"
)

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain number", input: "+15551234567", want: "+15551234567"},
		{name: "formatted number", input: "+1 (555) 123-4567", want: "+15551234567"},
		{name: "no plus", input: "5551234567", want: "5551234567"},
		{name: "too short", input: "+1234", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalizeRecipient(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTwilioNotifierMissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioNotifier(); err == nil {
		t.Error("expected error when credentials are absent")
	}
	if _, err := NewTwilioNotifier(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error when from number is absent")
	}
}

func TestNewTwilioNotifierFromEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000000")

	n, err := NewTwilioNotifier()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.from != "+15550000000" {
		t.Errorf("from = %q, want %q", n.from, "+15550000000")
	}
}

func TestNopNotifier(t *testing.T) {
	var n NopNotifier
	if err := n.Notify(context.Background(), "+15551234567", "hello"); err != nil {
		t.Errorf("NopNotifier returned error: %v", err)
	}
}
