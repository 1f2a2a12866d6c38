package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dialer-platform/internal/config"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioProvider places calls through the Twilio REST API.
//
// It deliberately avoids the vendor SDK: the surface we need is two form
// POSTs against the Calls resource, and hand-rolled requests keep the
// adapter inspectable and easy to point at a fake server in tests.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string

	agentURLBase      string
	statusCallbackURL string

	baseURL string
	client  *http.Client
}

func NewTwilioProvider(cfg config.TwilioConfig) *TwilioProvider {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = twilioDefaultBaseURL
	}
	return &TwilioProvider{
		accountSID:        cfg.AccountSID,
		authToken:         cfg.AuthToken,
		fromNumber:        cfg.FromNumber,
		agentURLBase:      strings.TrimSuffix(cfg.AgentURLBase, "/"),
		statusCallbackURL: cfg.StatusCallbackURL,
		baseURL:           base,
		client:            &http.Client{Timeout: cfg.DispatchTimeout},
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	if p.accountSID == "" || p.authToken == "" {
		return errors.New("dialer: twilio credentials not configured")
	}
	if p.fromNumber == "" {
		return errors.New("dialer: twilio from number not configured")
	}
	return nil
}

// Dispatch starts an outbound call. Twilio fetches the agent's call
// instructions from Url once the callee answers and POSTs the terminal
// status to StatusCallback.
func (p *TwilioProvider) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	form := url.Values{}
	form.Set("To", req.Destination)
	form.Set("From", p.fromNumber)
	form.Set("Url", p.agentURL(req.AgentID))
	form.Set("StatusCallback", p.callbackURL(req.JobID))
	form.Set("StatusCallbackEvent", "completed")
	form.Set("StatusCallbackMethod", http.MethodPost)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.baseURL, p.accountSID)
	body, err := p.postForm(ctx, endpoint, form)
	if err != nil {
		return DispatchResult{}, err
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return DispatchResult{}, fmt.Errorf("dialer: decode twilio dispatch response: %w", err)
	}
	if out.Sid == "" {
		return DispatchResult{}, errors.New("dialer: twilio dispatch response missing call sid")
	}
	return DispatchResult{ProviderCallID: out.Sid}, nil
}

func (p *TwilioProvider) Hangup(ctx context.Context, providerCallID string) error {
	if strings.TrimSpace(providerCallID) == "" {
		return errors.New("dialer: provider call id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		p.baseURL, p.accountSID, url.PathEscape(providerCallID))
	_, err := p.postForm(ctx, endpoint, form)
	return err
}

func (p *TwilioProvider) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("dialer: build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialer: twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("dialer: read twilio response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("dialer: twilio returned %d: %s", resp.StatusCode, truncateForLog(body))
	}
	return body, nil
}

func (p *TwilioProvider) agentURL(agentID string) string {
	return p.agentURLBase + "/" + url.PathEscape(agentID)
}

// callbackURL appends job_id to the configured status callback URL.
func (p *TwilioProvider) callbackURL(jobID string) string {
	sep := "?"
	if strings.Contains(p.statusCallbackURL, "?") {
		sep = "&"
	}
	return p.statusCallbackURL + sep + "job_id=" + url.QueryEscape(jobID)
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
