// Package agenterrors defines the error-kind taxonomy shared across the
// sniper agent, and the propagation rules each kind implies.
package agenterrors

import "errors"

// Kind is one of the error taxonomies the orchestrator and its components
// switch behavior on.
type Kind string

const (
	ConfigError         Kind = "ConfigError"
	BudgetExhausted      Kind = "BudgetExhausted"
	RpcError            Kind = "RpcError"
	AggregatorError      Kind = "AggregatorError"
	PriceUnavailable     Kind = "PriceUnavailable"
	ValidationFailed     Kind = "ValidationFailed"
	RiskBlocked          Kind = "RiskBlocked"
	InsufficientBalance  Kind = "InsufficientBalance"
	RateLimited          Kind = "RateLimited"
	NetworkTransient     Kind = "NetworkTransient"
)

// AgentError wraps an underlying error with its Kind and a component tag so
// the orchestrator's top-level dispatcher can decide fatal/skip/retry
// without string-matching error text.
type AgentError struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *AgentError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " in " + e.Component
	}
	return string(e.Kind) + " in " + e.Component + ": " + e.Err.Error()
}

func (e *AgentError) Unwrap() error { return e.Err }

// New builds an AgentError.
func New(kind Kind, component string, err error) *AgentError {
	return &AgentError{Kind: kind, Component: component, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *AgentError; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsFatalAtStartup reports whether this kind must abort process startup.
func IsFatalAtStartup(k Kind) bool {
	return k == ConfigError || k == InsufficientBalance
}

// SkipCandidate reports whether this kind means "drop this candidate,
// mark it recently-analysed, keep scanning" rather than propagating further.
func SkipCandidate(k Kind) bool {
	switch k {
	case BudgetExhausted, PriceUnavailable, AggregatorError, NetworkTransient,
		RiskBlocked, ValidationFailed:
		return true
	default:
		return false
	}
}

// Blacklistable reports whether this kind may additionally justify
// blacklisting the candidate's address, not merely skipping this pass.
func Blacklistable(k Kind) bool {
	return k == RiskBlocked || k == ValidationFailed
}
