package dialer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"dialer-platform/internal/config"
)

func testTwilioConfig(baseURL string) config.TwilioConfig {
	return config.TwilioConfig{
		AccountSID:        "AC123",
		AuthToken:         "secret",
		FromNumber:        "+15550001111",
		AgentURLBase:      "https://agents.example.com/twiml",
		StatusCallbackURL: "https://api.example.com/webhooks/twilio/status",
		APIBaseURL:        baseURL,
		DispatchTimeout:   5 * time.Second,
	}
}

func TestTwilioProvider_ImplementsProvider(t *testing.T) {
	var _ Provider = (*TwilioProvider)(nil)
}

func TestTwilioDispatch_PostsCallForm(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider(testTwilioConfig(srv.URL))
	res, err := p.Dispatch(context.Background(), DispatchRequest{
		JobID:       "job-1",
		AgentID:     "agent-7",
		Destination: "+15552223333",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ProviderCallID != "CA999" {
		t.Fatalf("expected provider call id CA999, got %q", res.ProviderCallID)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("expected basic auth with account sid and token")
	}
	if gotForm.Get("To") != "+15552223333" {
		t.Fatalf("unexpected To: %q", gotForm.Get("To"))
	}
	if gotForm.Get("From") != "+15550001111" {
		t.Fatalf("unexpected From: %q", gotForm.Get("From"))
	}
	if gotForm.Get("Url") != "https://agents.example.com/twiml/agent-7" {
		t.Fatalf("unexpected Url: %q", gotForm.Get("Url"))
	}
	if gotForm.Get("StatusCallback") != "https://api.example.com/webhooks/twilio/status?job_id=job-1" {
		t.Fatalf("unexpected StatusCallback: %q", gotForm.Get("StatusCallback"))
	}
}

func TestTwilioDispatch_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To number"}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider(testTwilioConfig(srv.URL))
	_, err := p.Dispatch(context.Background(), DispatchRequest{
		JobID:       "job-1",
		AgentID:     "agent-7",
		Destination: "not-a-number",
	})
	if err == nil {
		t.Fatalf("expected error from provider rejection")
	}
}

func TestTwilioDispatch_MissingSidIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider(testTwilioConfig(srv.URL))
	_, err := p.Dispatch(context.Background(), DispatchRequest{JobID: "j", AgentID: "a", Destination: "+15550002222"})
	if err == nil {
		t.Fatalf("expected error when response has no sid")
	}
}

func TestTwilioHangup_PostsCompletedStatus(t *testing.T) {
	var gotPath, gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotStatus = r.PostFormValue("Status")
		_, _ = w.Write([]byte(`{"sid":"CA999","status":"completed"}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider(testTwilioConfig(srv.URL))
	if err := p.Hangup(context.Background(), "CA999"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Calls/CA999.json" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotStatus != "completed" {
		t.Fatalf("expected Status=completed, got %q", gotStatus)
	}
}

func TestTwilioHangup_RequiresProviderCallID(t *testing.T) {
	p := NewTwilioProvider(testTwilioConfig("http://unused.invalid"))
	if err := p.Hangup(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty provider call id")
	}
}

func TestValidDestination(t *testing.T) {
	valid := []string{"+15552223333", "+442071838750", "+8618612345678"}
	for _, s := range valid {
		if !ValidDestination(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	invalid := []string{"", "+", "15552223333", "+05551112222", "+1555abc", "+123456789012345678"}
	for _, s := range invalid {
		if ValidDestination(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
