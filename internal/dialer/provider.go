package dialer

import (
	"context"
)

// Provider defines the provider-agnostic interface used by business logic
// to place and end outbound calls.
//
// Rules:
// - No provider REST/SDK calls outside dialer adapters.
// - Dispatch only starts the call; progress and the terminal outcome
//   arrive later on the status webhook, matched by job id.
// - Keep request/response types provider-agnostic; provider-specific ids
//   travel as opaque strings.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)

	// Hangup asks the provider to end an in-progress call. The terminal
	// status still arrives on the webhook; callers must not treat a
	// successful hangup as the completion event.
	Hangup(ctx context.Context, providerCallID string) error
}

// DispatchRequest carries everything a provider needs to start one
// outbound call.
type DispatchRequest struct {
	// JobID is the internal job identifier. It rides along on the status
	// callback URL so completions can be matched without a provider-sid
	// lookup.
	JobID string `json:"job_id"`

	// AgentID selects the call instructions the callee is connected to.
	AgentID string `json:"agent_id"`

	// Destination is the number to dial (E.164).
	Destination string `json:"destination"`
}

// DispatchResult reports a successfully started call.
type DispatchResult struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`
}
