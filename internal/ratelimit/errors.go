package ratelimit

import "fmt"

// DefaultMessage is returned to rejected callers when a rule carries no
// message of its own.
const DefaultMessage = "too many requests, please try again later"

// LimitExceededError reports that a specific rule rejected a request.
type LimitExceededError struct {
	Rule    string
	Message string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit %q exceeded: %s", e.Rule, e.Message)
}

// BlockedError reports that a request was rejected before rule evaluation
// because its source IP is blocked. Distinct from ordinary limit exceedance.
type BlockedError struct {
	IP string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("ip %s is blocked", e.IP)
}
