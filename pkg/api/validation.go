package api

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxQueryLength int
	MaxPlanSteps   int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxQueryLength: 32 * 1024,
		MaxPlanSteps:   32,
	}
}

// ValidateQuery checks a QueryRequest for validity. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateQuery(req *QueryRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Query) == "" {
		return NewInvalidRequestError("query", "query is required")
	}
	if cfg.MaxQueryLength > 0 && len(req.Query) > cfg.MaxQueryLength {
		return NewInvalidRequestError("query",
			fmt.Sprintf("query exceeds maximum length of %d bytes", cfg.MaxQueryLength))
	}
	if len(req.DomainID) > 128 {
		return NewInvalidRequestError("domain_id", "domain_id exceeds maximum length of 128")
	}
	if len(req.SessionID) > 256 {
		return NewInvalidRequestError("session_id", "session_id exceeds maximum length of 256")
	}
	return nil
}

// Validate checks that the plan is executable against the given roster of
// agent names. All problems are reported together; each wraps ErrPlanInvalid.
// A nil roster skips the agent membership check.
func (p *Plan) Validate(roster []string) error {
	if p == nil || len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrPlanInvalid)
	}

	var known map[string]bool
	if roster != nil {
		known = make(map[string]bool, len(roster))
		for _, name := range roster {
			known[name] = true
		}
	}

	var errs []error
	seen := make(map[int]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.StepIndex < 0 {
			errs = append(errs, fmt.Errorf("%w: steps[%d]: step_index %d is negative", ErrPlanInvalid, i, s.StepIndex))
		}
		if seen[s.StepIndex] {
			errs = append(errs, fmt.Errorf("%w: steps[%d]: duplicate step_index %d", ErrPlanInvalid, i, s.StepIndex))
		}
		seen[s.StepIndex] = true

		if strings.TrimSpace(s.AgentName) == "" {
			errs = append(errs, fmt.Errorf("%w: steps[%d]: agent_name is required", ErrPlanInvalid, i))
		} else if known != nil && !known[s.AgentName] {
			errs = append(errs, fmt.Errorf("%w: steps[%d]: unknown agent %q", ErrPlanInvalid, i, s.AgentName))
		}
		if strings.TrimSpace(s.TaskDescription) == "" {
			errs = append(errs, fmt.Errorf("%w: steps[%d]: task_description is required", ErrPlanInvalid, i))
		}
	}
	return errors.Join(errs...)
}
