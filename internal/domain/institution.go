package domain

import (
	"fmt"
	"math"
)

const (
	// MaxNameLength bounds institution and goal names.
	MaxNameLength = 100
	// MaxDescriptionLength bounds free-text descriptions.
	MaxDescriptionLength = 500
	// MaxMonetaryValue bounds balances and transaction amounts.
	MaxMonetaryValue = 1e9
	// MaxAllocatedPercent is the full allocation budget of an institution.
	MaxAllocatedPercent = 100
)

// Institution is a financial institution owned by a single user. It is
// keyed by (userId, institutionId).
type Institution struct {
	UserID           string   `json:"userId" dynamodbav:"userId"`
	InstitutionID    string   `json:"institutionId" dynamodbav:"institutionId"`
	Name             string   `json:"name" dynamodbav:"name"`
	StartingBalance  float64  `json:"startingBalance" dynamodbav:"startingBalance"`
	CreatedAt        int64    `json:"createdAt" dynamodbav:"createdAt"`
	AllocatedPercent int      `json:"allocatedPercent" dynamodbav:"allocatedPercent"`
	LinkedGoals      []string `json:"linkedGoals,omitempty" dynamodbav:"linkedGoals,stringset,omitempty"`
}

// Validate checks the institution's fields against their allowed ranges.
func (i *Institution) Validate() error {
	if i.UserID == "" {
		return fmt.Errorf("%w: missing field userId", ErrInvalidInput)
	}
	if i.InstitutionID == "" {
		return fmt.Errorf("%w: missing field institutionId", ErrInvalidInput)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: missing field name", ErrInvalidInput)
	}
	if len(i.Name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, MaxNameLength)
	}
	if math.IsNaN(i.StartingBalance) || math.IsInf(i.StartingBalance, 0) {
		return fmt.Errorf("%w: startingBalance must be a finite number", ErrInvalidInput)
	}
	if i.StartingBalance < 0 || i.StartingBalance > MaxMonetaryValue {
		return fmt.Errorf("%w: startingBalance %v is out of range", ErrInvalidInput, i.StartingBalance)
	}
	if i.AllocatedPercent < 0 || i.AllocatedPercent > MaxAllocatedPercent {
		return fmt.Errorf("%w: allocatedPercent %d is out of range", ErrInvalidInput, i.AllocatedPercent)
	}

	return nil
}

// LinkGoal records a goal id on the institution. Linked goals are
// informational; duplicates are dropped.
func (i *Institution) LinkGoal(goalID string) {
	for _, id := range i.LinkedGoals {
		if id == goalID {
			return
		}
	}
	i.LinkedGoals = append(i.LinkedGoals, goalID)
}

// UnlinkGoal removes a goal id from the institution, if present.
func (i *Institution) UnlinkGoal(goalID string) {
	for idx, id := range i.LinkedGoals {
		if id == goalID {
			i.LinkedGoals = append(i.LinkedGoals[:idx], i.LinkedGoals[idx+1:]...)
			return
		}
	}
}
