// Package approval owns the expense state machine. Decide is the only
// code path that moves an expense out of pending; the storage layer's
// update methods refuse to touch status.
package approval

import (
	"fmt"
	"time"

	"expense-approval/internal/access"
	"expense-approval/internal/apperr"
	"expense-approval/internal/models"
	"expense-approval/internal/storage"
)

// Outcome is the decision an approver takes on a pending expense.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// ParseOutcome validates a caller-supplied outcome string.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeApprove, OutcomeReject:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("%w: got %q", apperr.ErrInvalidOutcome, s)
}

func (o Outcome) status() models.Status {
	if o == OutcomeApprove {
		return models.StatusApproved
	}
	return models.StatusRejected
}

// Engine transitions expenses between lifecycle states.
type Engine struct {
	db *storage.DB
}

// NewEngine creates an approval engine backed by db.
func NewEngine(db *storage.DB) *Engine {
	return &Engine{db: db}
}

// Decide moves a pending expense to approved or rejected on behalf of
// decider, recording the decider, the decision time and an optional note.
//
// It fails with apperr.ErrForbidden when the decider is not an approver or
// owns the expense, apperr.ErrNotFound when the id is unknown, and
// apperr.ErrInvalidState when the expense has already been decided.
// Decisions are final: a second decide on the same expense always fails,
// whatever the outcome.
func (e *Engine) Decide(expenseID int64, decider *models.User, outcome Outcome, note string) (*models.Expense, error) {
	// The role gate runs before the lookup so non-approvers learn nothing
	// about which expense ids exist.
	if err := access.CanDecideAny(decider); err != nil {
		return nil, err
	}

	expense, err := e.db.GetExpense(expenseID)
	if err != nil {
		return nil, err
	}
	if err := access.CanDecide(decider, expense); err != nil {
		return nil, err
	}
	if expense.Status != models.StatusPending {
		return nil, apperr.ErrInvalidState
	}

	// The storage guard re-checks pending atomically, so a decide racing
	// another decide or an edit cannot double-apply.
	return e.db.DecideExpense(expenseID, decider.ID, outcome.status(), note, time.Now().UTC())
}

// Queue returns the pending expenses in arrival order.
func (e *Engine) Queue() ([]models.Expense, error) {
	return e.db.ListByStatus(models.StatusPending)
}
