// Package access centralizes every authorization rule in one place. The
// predicates are pure: they look only at the caller and, where relevant,
// the expense, and return apperr.ErrForbidden (or apperr.ErrAuthRequired
// for anonymous callers) without touching storage.
package access

import (
	"fmt"

	"expense-approval/internal/apperr"
	"expense-approval/internal/models"
)

// CanCreateExpense allows any authenticated user to file their own
// expenses, approvers included.
func CanCreateExpense(caller *models.User) error {
	if caller == nil {
		return apperr.ErrAuthRequired
	}
	return nil
}

// CanViewExpense allows the owner and any approver to read an expense.
func CanViewExpense(caller *models.User, expense *models.Expense) error {
	if caller == nil {
		return apperr.ErrAuthRequired
	}
	if caller.ID == expense.OwnerID || caller.Role == models.RoleApprover {
		return nil
	}
	return apperr.ErrForbidden
}

// CanUpdateExpense allows only the owner to edit an expense. Whether the
// expense is still editable is a lifecycle question, answered by storage.
func CanUpdateExpense(caller *models.User, expense *models.Expense) error {
	if caller == nil {
		return apperr.ErrAuthRequired
	}
	if caller.ID != expense.OwnerID {
		return apperr.ErrForbidden
	}
	return nil
}

// CanViewQueue allows only approvers to list the pending queue.
func CanViewQueue(caller *models.User) error {
	if caller == nil {
		return apperr.ErrAuthRequired
	}
	if caller.Role != models.RoleApprover {
		return apperr.ErrForbidden
	}
	return nil
}

// CanDecideAny reports whether the caller may attempt decisions at all.
// It takes no expense, so it can run before any lookup; ineligible
// callers learn nothing about which expense ids exist.
func CanDecideAny(caller *models.User) error {
	if caller == nil {
		return apperr.ErrAuthRequired
	}
	if caller.Role != models.RoleApprover {
		return apperr.ErrForbidden
	}
	return nil
}

// CanDecide allows an approver to decide any expense but their own.
func CanDecide(caller *models.User, expense *models.Expense) error {
	if err := CanDecideAny(caller); err != nil {
		return err
	}
	if caller.ID == expense.OwnerID {
		return fmt.Errorf("%w: cannot decide own expense", apperr.ErrForbidden)
	}
	return nil
}
