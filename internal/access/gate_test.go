package access

import (
	"testing"

	"expense-approval/internal/apperr"
	"expense-approval/internal/models"

	"github.com/stretchr/testify/assert"
)

var (
	employee      = &models.User{ID: 1, Role: models.RoleEmployee}
	otherEmployee = &models.User{ID: 2, Role: models.RoleEmployee}
	approver      = &models.User{ID: 3, Role: models.RoleApprover}
)

func ownedBy(u *models.User) *models.Expense {
	return &models.Expense{ID: 10, OwnerID: u.ID, Status: models.StatusPending}
}

func TestCanCreateExpense(t *testing.T) {
	assert.NoError(t, CanCreateExpense(employee))
	assert.NoError(t, CanCreateExpense(approver), "approvers file their own expenses too")
	assert.ErrorIs(t, CanCreateExpense(nil), apperr.ErrAuthRequired)
}

func TestCanViewExpense(t *testing.T) {
	expense := ownedBy(employee)

	assert.NoError(t, CanViewExpense(employee, expense))
	assert.NoError(t, CanViewExpense(approver, expense))
	assert.ErrorIs(t, CanViewExpense(otherEmployee, expense), apperr.ErrForbidden)
	assert.ErrorIs(t, CanViewExpense(nil, expense), apperr.ErrAuthRequired)
}

func TestCanUpdateExpense(t *testing.T) {
	expense := ownedBy(employee)

	assert.NoError(t, CanUpdateExpense(employee, expense))
	assert.ErrorIs(t, CanUpdateExpense(otherEmployee, expense), apperr.ErrForbidden)
	assert.ErrorIs(t, CanUpdateExpense(approver, expense), apperr.ErrForbidden,
		"approvers decide expenses, they do not edit them")
	assert.ErrorIs(t, CanUpdateExpense(nil, expense), apperr.ErrAuthRequired)
}

func TestCanViewQueue(t *testing.T) {
	assert.NoError(t, CanViewQueue(approver))
	assert.ErrorIs(t, CanViewQueue(employee), apperr.ErrForbidden)
	assert.ErrorIs(t, CanViewQueue(nil), apperr.ErrAuthRequired)
}

func TestCanDecideAny(t *testing.T) {
	assert.NoError(t, CanDecideAny(approver))
	assert.ErrorIs(t, CanDecideAny(employee), apperr.ErrForbidden)
	assert.ErrorIs(t, CanDecideAny(nil), apperr.ErrAuthRequired)
}

func TestCanDecide(t *testing.T) {
	assert.NoError(t, CanDecide(approver, ownedBy(employee)))
	assert.ErrorIs(t, CanDecide(approver, ownedBy(approver)), apperr.ErrForbidden,
		"no self-approval")
	assert.ErrorIs(t, CanDecide(employee, ownedBy(otherEmployee)), apperr.ErrForbidden)
	assert.ErrorIs(t, CanDecide(nil, ownedBy(employee)), apperr.ErrAuthRequired)
}
