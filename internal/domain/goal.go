package domain

import (
	"fmt"
)

// Goal is a savings goal funded by percentage allocations of one or more
// of the user's institutions. It is keyed by (userId, goalId).
type Goal struct {
	UserID      string `json:"userId" dynamodbav:"userId"`
	GoalID      string `json:"goalId" dynamodbav:"goalId"`
	Name        string `json:"name" dynamodbav:"name"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`

	// LinkedInstitutions maps institution id to the percentage of that
	// institution's balance allocated to this goal.
	LinkedInstitutions map[string]int `json:"linkedInstitutions" dynamodbav:"linkedInstitutions"`

	CreatedAt int64 `json:"createdAt" dynamodbav:"createdAt"`
}

// Validate checks the goal's fields against their allowed ranges. The
// cross-record invariant (per-institution totals staying within 100%) is
// the allocation engine's job, not the record's.
func (g *Goal) Validate() error {
	if g.UserID == "" {
		return fmt.Errorf("%w: missing field userId", ErrInvalidInput)
	}
	if g.Name == "" {
		return fmt.Errorf("%w: missing field name", ErrInvalidInput)
	}
	if len(g.Name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, MaxNameLength)
	}
	if len(g.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	if len(g.LinkedInstitutions) == 0 {
		return fmt.Errorf("%w: at least one institution allocation is required", ErrInvalidInput)
	}
	for institutionID, percent := range g.LinkedInstitutions {
		if institutionID == "" {
			return fmt.Errorf("%w: empty institution id in allocations", ErrInvalidInput)
		}
		if percent < 0 || percent > MaxAllocatedPercent {
			return fmt.Errorf("%w: percentage %d for institution %s must be between 0 and 100", ErrInvalidAllocation, percent, institutionID)
		}
	}

	return nil
}
