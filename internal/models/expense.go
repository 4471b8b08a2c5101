package models

import "time"

// Status is the lifecycle state of an expense.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transition or edit.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Expense represents an expense claim. Amount and Currency are the values
// as submitted; NormalizedAmount is the same value in the reporting
// currency, recomputed on every amount or currency change while pending.
// DecidedBy, DecidedAt and DecisionNote are set once, when the expense
// leaves the pending state, and never change afterwards.
type Expense struct {
	ID               int64      `json:"id"`
	OwnerID          int64      `json:"owner_id"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	NormalizedAmount float64    `json:"normalized_amount"`
	Category         string     `json:"category"`
	Description      string     `json:"description,omitempty"`
	ExpenseDate      time.Time  `json:"date"`
	Status           Status     `json:"status"`
	DecidedBy        *int64     `json:"decided_by,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	DecisionNote     string     `json:"decision_note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
