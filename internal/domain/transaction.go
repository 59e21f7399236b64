package domain

import (
	"fmt"
	"math"
)

// TransactionType categorizes a transaction.
type TransactionType string

const (
	// Deposit represents money entering an institution.
	Deposit TransactionType = "DEPOSIT"
	// Withdrawal represents money leaving an institution.
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == Deposit || t == Withdrawal
}

// Transaction is a record against an institution, keyed by
// (institutionId, createdAt). CreatedAt is whole epoch seconds, so two
// transactions on the same institution within the same second share a key
// and the later put wins. The transaction id is a plain attribute, not
// part of the key.
type Transaction struct {
	InstitutionID string          `json:"institutionId" dynamodbav:"institutionId"`
	CreatedAt     int64           `json:"createdAt" dynamodbav:"createdAt"`
	TransactionID string          `json:"transactionId" dynamodbav:"transactionId"`
	UserID        string          `json:"userId" dynamodbav:"userId"`
	Type          TransactionType `json:"type" dynamodbav:"type"`
	Amount        float64         `json:"amount" dynamodbav:"amount"`
	Tags          []string        `json:"tags,omitempty" dynamodbav:"tags,omitempty"`
	Description   string          `json:"description,omitempty" dynamodbav:"description,omitempty"`
}

// Validate checks that all required fields are present and in range,
// naming the first offending field.
func (t *Transaction) Validate() error {
	if t.InstitutionID == "" {
		return fmt.Errorf("%w: missing field institutionId", ErrInvalidInput)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: missing field userId", ErrInvalidInput)
	}
	if t.TransactionID == "" {
		return fmt.Errorf("%w: missing field transactionId", ErrInvalidInput)
	}
	if t.Type == "" {
		return fmt.Errorf("%w: missing field type", ErrInvalidInput)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, t.Type)
	}
	if t.CreatedAt == 0 {
		return fmt.Errorf("%w: missing field createdAt", ErrInvalidInput)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrInvalidInput)
	}
	if t.Amount <= 0 || t.Amount > MaxMonetaryValue {
		return fmt.Errorf("%w: amount %v is out of range", ErrInvalidInput, t.Amount)
	}

	return nil
}
