package approval

import (
	"testing"
	"time"

	"expense-approval/internal/apperr"
	"expense-approval/internal/currency"
	"expense-approval/internal/models"
	"expense-approval/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// EngineSuite provides a test suite for the approval state machine
type EngineSuite struct {
	suite.Suite
	db       *storage.DB
	engine   *Engine
	employee *models.User
	approver *models.User
}

// SetupTest runs before each test
func (suite *EngineSuite) SetupTest() {
	converter, err := currency.NewConverter("USD", currency.Snapshot{"EUR": 1.08})
	require.NoError(suite.T(), err)

	suite.db, err = storage.NewDB(":memory:", converter)
	require.NoError(suite.T(), err)

	suite.employee, err = suite.db.CreateUser("Employee", "employee@example.com", "hash", models.RoleEmployee)
	require.NoError(suite.T(), err)
	suite.approver, err = suite.db.CreateUser("Approver", "approver@example.com", "hash", models.RoleApprover)
	require.NoError(suite.T(), err)

	suite.engine = NewEngine(suite.db)
}

// TearDownTest runs after each test
func (suite *EngineSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *EngineSuite) createExpense(ownerID int64) *models.Expense {
	e, err := suite.db.CreateExpense(ownerID, 50, "EUR", "travel", "", time.Now().UTC())
	require.NoError(suite.T(), err)
	return e
}

func (suite *EngineSuite) TestApprove() {
	e := suite.createExpense(suite.employee.ID)

	decided, err := suite.engine.Decide(e.ID, suite.approver, OutcomeApprove, "looks fine")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), models.StatusApproved, decided.Status)
	require.NotNil(suite.T(), decided.DecidedBy)
	assert.Equal(suite.T(), suite.approver.ID, *decided.DecidedBy)
	require.NotNil(suite.T(), decided.DecidedAt)
	assert.WithinDuration(suite.T(), time.Now().UTC(), *decided.DecidedAt, 5*time.Second)
	assert.Equal(suite.T(), "looks fine", decided.DecisionNote)
}

func (suite *EngineSuite) TestReject() {
	e := suite.createExpense(suite.employee.ID)

	decided, err := suite.engine.Decide(e.ID, suite.approver, OutcomeReject, "no receipt")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusRejected, decided.Status)
	assert.Equal(suite.T(), "no receipt", decided.DecisionNote)
}

func (suite *EngineSuite) TestEmployeeCannotDecide() {
	e := suite.createExpense(suite.employee.ID)

	_, err := suite.engine.Decide(e.ID, suite.employee, OutcomeApprove, "")
	assert.ErrorIs(suite.T(), err, apperr.ErrForbidden)
}

func (suite *EngineSuite) TestNoSelfApproval() {
	// Approvers file their own expenses too; they still may not decide them.
	e := suite.createExpense(suite.approver.ID)

	_, err := suite.engine.Decide(e.ID, suite.approver, OutcomeApprove, "")
	assert.ErrorIs(suite.T(), err, apperr.ErrForbidden)

	got, err := suite.db.GetExpense(e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusPending, got.Status, "refused decision must not mutate")
}

func (suite *EngineSuite) TestDoubleDecideFails() {
	e := suite.createExpense(suite.employee.ID)

	_, err := suite.engine.Decide(e.ID, suite.approver, OutcomeApprove, "")
	require.NoError(suite.T(), err)

	for _, outcome := range []Outcome{OutcomeApprove, OutcomeReject} {
		_, err = suite.engine.Decide(e.ID, suite.approver, outcome, "")
		assert.ErrorIs(suite.T(), err, apperr.ErrInvalidState, "second decision must fail regardless of outcome")
	}
}

func (suite *EngineSuite) TestDecideNotFound() {
	_, err := suite.engine.Decide(4242, suite.approver, OutcomeApprove, "")
	assert.ErrorIs(suite.T(), err, apperr.ErrNotFound)
}

func (suite *EngineSuite) TestNonApproverLearnsNothingAboutExistence() {
	// Role is rejected before the lookup: the error is identical for
	// present and absent expense ids.
	e := suite.createExpense(suite.employee.ID)

	_, errPresent := suite.engine.Decide(e.ID, suite.employee, OutcomeApprove, "")
	_, errAbsent := suite.engine.Decide(987654, suite.employee, OutcomeApprove, "")

	assert.ErrorIs(suite.T(), errPresent, apperr.ErrForbidden)
	assert.ErrorIs(suite.T(), errAbsent, apperr.ErrForbidden)
}

func (suite *EngineSuite) TestDecideAnonymous() {
	e := suite.createExpense(suite.employee.ID)

	_, err := suite.engine.Decide(e.ID, nil, OutcomeApprove, "")
	assert.ErrorIs(suite.T(), err, apperr.ErrAuthRequired)
}

func (suite *EngineSuite) TestQueue() {
	first := suite.createExpense(suite.employee.ID)
	second := suite.createExpense(suite.employee.ID)

	_, err := suite.engine.Decide(first.ID, suite.approver, OutcomeApprove, "")
	require.NoError(suite.T(), err)

	queue, err := suite.engine.Queue()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), queue, 1)
	assert.Equal(suite.T(), second.ID, queue[0].ID)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestParseOutcome(t *testing.T) {
	got, err := ParseOutcome("approve")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprove, got)

	got, err = ParseOutcome("reject")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReject, got)

	for _, bad := range []string{"", "Approve", "approved", "maybe"} {
		_, err = ParseOutcome(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidOutcome, "input %q", bad)
	}
}
