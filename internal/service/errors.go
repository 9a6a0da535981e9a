package service

import (
	"fmt"
	"strings"

	"dapurpos/backend/internal/store"
)

// RemainingQuantityViolation names one ingredient whose operator-entered
// remaining count failed validation.
type RemainingQuantityViolation struct {
	IngredientID   string  `json:"ingredient_id"`
	IngredientName string  `json:"ingredient_name,omitempty"`
	Remaining      float64 `json:"remaining"`
	Starting       float64 `json:"starting"`
	Reason         string  `json:"reason"`
}

// InvalidRemainingQuantityError rejects a session close whose remaining
// counts are out of range. It carries every violation so the operator can fix
// the whole form in one pass; nothing was persisted.
type InvalidRemainingQuantityError struct {
	Violations []RemainingQuantityViolation
}

func (e *InvalidRemainingQuantityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.IngredientID, v.Reason))
	}
	return "invalid remaining quantity: " + strings.Join(parts, "; ")
}

func (e *InvalidRemainingQuantityError) Unwrap() error {
	return store.ErrInvalidInput
}

// PersistenceError wraps a storage failure during a session close. The
// underlying commit is transactional, so a PersistenceError means the session
// and all inventory are unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
