package dialer

import (
	"net/http"
	"strconv"
	"strings"

	"dialer-platform/internal/calls"
)

// StatusCallbackForm captures the subset of voice status callback fields we
// care about. Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
//
// Keep it minimal and provider-adapter-only.
// Business logic (completion handling) is not made here.
type StatusCallbackForm struct {
	// JobID comes from the job_id query param on the callback URL, not the
	// form body; the adapter put it there at dispatch time.
	JobID string

	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration string
	ErrorCode    string
	Timestamp    string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		JobID:        strings.TrimSpace(r.URL.Query().Get("job_id")),
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		CallDuration: r.PostFormValue("CallDuration"),
		ErrorCode:    strings.TrimSpace(r.PostFormValue("ErrorCode")),
		Timestamp:    r.PostFormValue("Timestamp"),
	}
	return f, nil
}

// Outcome is the provider-agnostic terminal call event handed to the
// completion handler.
type Outcome struct {
	JobID          string
	ProviderCallID string

	Status calls.CallStatus

	DurationSeconds int

	// Reason carries the provider error code on failed calls; empty
	// otherwise.
	Reason string
}

// ToOutcome maps the provider status vocabulary onto ours. The second
// return is false for progress events (queued, initiated, ringing,
// in-progress), which never finalize a job.
func (f StatusCallbackForm) ToOutcome() (Outcome, bool) {
	status, terminal := mapCallStatus(f.CallStatus)
	if !terminal {
		return Outcome{}, false
	}
	duration, _ := strconv.Atoi(strings.TrimSpace(f.CallDuration))
	reason := ""
	if f.ErrorCode != "" {
		reason = "provider error " + f.ErrorCode
	}
	return Outcome{
		JobID:           f.JobID,
		ProviderCallID:  f.CallSid,
		Status:          status,
		DurationSeconds: duration,
		Reason:          reason,
	}, true
}

func mapCallStatus(s string) (calls.CallStatus, bool) {
	switch s {
	case "completed":
		return calls.CallStatusCompleted, true
	case "busy":
		return calls.CallStatusBusy, true
	case "no-answer":
		return calls.CallStatusNoAnswer, true
	case "failed":
		return calls.CallStatusFailed, true
	case "canceled":
		return calls.CallStatusCanceled, true
	default:
		return "", false
	}
}
