package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-approval/internal/apperr"
	"expense-approval/internal/currency"
	"expense-approval/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection and owns all persistent state: users,
// sessions and expenses. Lifecycle guards live here so that no caller can
// mutate an expense that has left the pending state.
type DB struct {
	conn      *sql.DB
	converter *currency.Converter
}

// NewDB opens a database connection and runs migrations. The converter is
// used to recompute normalized amounts whenever an expense's amount or
// currency is set.
func NewDB(path string, converter *currency.Converter) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers anyway; a single connection also makes the
	// guarded status updates below race-free against concurrent edits.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, err
		}
	}

	db := &DB{conn: conn, converter: converter}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			issued_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			normalized_amount REAL NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			expense_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			decided_by INTEGER,
			decided_at DATETIME,
			decision_note TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id),
			FOREIGN KEY (decided_by) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_owner ON expenses(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_status ON expenses(status)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Converter returns the currency converter this store normalizes with.
func (db *DB) Converter() *currency.Converter {
	return db.converter
}

// CreateUser creates a new user with the given password hash and role.
func (db *DB) CreateUser(name, email, passwordHash string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidRole, role)
	}
	email = strings.TrimSpace(email)

	result, err := db.conn.Exec(
		"INSERT INTO users (name, email, password_hash, role) VALUES (?, ?, ?, ?)",
		name, email, passwordHash, role,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", apperr.ErrDuplicateEmail, email)
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ? COLLATE NOCASE",
		strings.TrimSpace(email),
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession records a new session for a user.
func (db *DB) CreateSession(token string, userID int64, issuedAt, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)",
		token, userID, issuedAt, expiresAt,
	)
	return err
}

// ValidateSession resolves a token to its user. It fails with
// apperr.ErrInvalidToken for unknown tokens and apperr.ErrExpiredToken for
// known tokens past their expiry; expired rows are deleted on the way out.
func (db *DB) ValidateSession(token string) (*models.User, error) {
	row := db.conn.QueryRow(`
		SELECT u.id, u.name, u.email, u.password_hash, u.role, u.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ?
	`, token)

	var u models.User
	var expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, err
	}

	if !expiresAt.After(time.Now()) {
		_ = db.DeleteSession(token)
		return nil, apperr.ErrExpiredToken
	}

	return &u, nil
}

// DeleteSession removes a session by token. Deleting an absent token is
// not an error, so logout is idempotent.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now())
	return err
}

// UpdateFields carries the optional fields of an expense update. Nil
// fields are left unchanged. Status is deliberately absent: only the
// approval engine moves an expense out of pending.
type UpdateFields struct {
	Amount      *float64
	Currency    *string
	Category    *string
	Description *string
	Date        *time.Time
}

// CreateExpense validates and persists a new expense in status pending,
// owned by ownerID, with its amount normalized into the reporting currency.
func (db *DB) CreateExpense(ownerID int64, amount float64, currencyCode, category, description string, date time.Time) (*models.Expense, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, apperr.ErrEmptyCategory
	}

	currencyCode = strings.ToUpper(strings.TrimSpace(currencyCode))
	normalized, err := db.converter.Normalize(amount, currencyCode)
	if err != nil {
		return nil, err
	}

	result, err := db.conn.Exec(`
		INSERT INTO expenses (owner_id, amount, currency, normalized_amount, category, description, expense_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, amount, currencyCode, normalized, category, description, date, models.StatusPending, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetExpense(id)
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(id int64) (*models.Expense, error) {
	row := db.conn.QueryRow(selectExpense+" WHERE id = ?", id)
	return scanExpense(row)
}

// UpdateExpense applies fields to a pending expense on behalf of editorID.
// It fails with apperr.ErrNotFound for unknown ids, apperr.ErrForbidden
// when the editor is not the owner, and apperr.ErrInvalidState once the
// expense has been decided. Any amount or currency change re-normalizes.
func (db *DB) UpdateExpense(id, editorID int64, fields UpdateFields) (*models.Expense, error) {
	e, err := db.GetExpense(id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != editorID {
		return nil, apperr.ErrForbidden
	}
	if e.Status != models.StatusPending {
		return nil, apperr.ErrInvalidState
	}

	if fields.Amount != nil {
		if err := validateAmount(*fields.Amount); err != nil {
			return nil, err
		}
		e.Amount = *fields.Amount
	}
	if fields.Currency != nil {
		e.Currency = strings.ToUpper(strings.TrimSpace(*fields.Currency))
	}
	if fields.Category != nil {
		category := strings.TrimSpace(*fields.Category)
		if category == "" {
			return nil, apperr.ErrEmptyCategory
		}
		e.Category = category
	}
	if fields.Description != nil {
		e.Description = *fields.Description
	}
	if fields.Date != nil {
		if err := validateDate(*fields.Date); err != nil {
			return nil, err
		}
		e.ExpenseDate = *fields.Date
	}

	normalized, err := db.converter.Normalize(e.Amount, e.Currency)
	if err != nil {
		return nil, err
	}
	e.NormalizedAmount = normalized

	// The status guard makes the write atomic against a concurrent decide:
	// if the expense left pending between the read above and here, zero
	// rows match and nothing is mutated.
	result, err := db.conn.Exec(`
		UPDATE expenses
		SET amount = ?, currency = ?, normalized_amount = ?, category = ?, description = ?, expense_date = ?
		WHERE id = ? AND status = ?`,
		e.Amount, e.Currency, e.NormalizedAmount, e.Category, e.Description, e.ExpenseDate, id, models.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, apperr.ErrInvalidState
	}

	return db.GetExpense(id)
}

// DecideExpense atomically moves a pending expense into a terminal status
// and records who decided it and when. It fails with apperr.ErrNotFound if
// the id is unknown and apperr.ErrInvalidState if the expense is no longer
// pending. Authorization belongs to the approval engine; this method only
// enforces the lifecycle.
func (db *DB) DecideExpense(id, deciderID int64, status models.Status, note string, decidedAt time.Time) (*models.Expense, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: %q is not a terminal status", apperr.ErrInvalidState, status)
	}

	result, err := db.conn.Exec(`
		UPDATE expenses
		SET status = ?, decided_by = ?, decided_at = ?, decision_note = ?
		WHERE id = ? AND status = ?`,
		status, deciderID, decidedAt, note, id, models.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the id does not exist or the expense was already decided.
		if _, err := db.GetExpense(id); err != nil {
			return nil, err
		}
		return nil, apperr.ErrInvalidState
	}

	return db.GetExpense(id)
}

// ListByOwner retrieves all expenses owned by ownerID, newest first.
func (db *DB) ListByOwner(ownerID int64) ([]models.Expense, error) {
	rows, err := db.conn.Query(
		selectExpense+" WHERE owner_id = ? ORDER BY created_at DESC, id DESC",
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

// ListByStatus retrieves all expenses in the given status, oldest first,
// so approvers work through the queue in arrival order.
func (db *DB) ListByStatus(status models.Status) ([]models.Expense, error) {
	rows, err := db.conn.Query(
		selectExpense+" WHERE status = ? ORDER BY created_at ASC, id ASC",
		status,
	)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

const selectExpense = `
	SELECT id, owner_id, amount, currency, normalized_amount, category, description,
	       expense_date, status, decided_by, decided_at, decision_note, created_at
	FROM expenses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var e models.Expense
	var decidedBy sql.NullInt64
	var decidedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Amount, &e.Currency, &e.NormalizedAmount, &e.Category,
		&e.Description, &e.ExpenseDate, &e.Status, &decidedBy, &decidedAt, &e.DecisionNote, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if decidedBy.Valid {
		e.DecidedBy = &decidedBy.Int64
	}
	if decidedAt.Valid {
		e.DecidedAt = &decidedAt.Time
	}
	return &e, nil
}

func collectExpenses(rows *sql.Rows) ([]models.Expense, error) {
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func validateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %v", apperr.ErrInvalidAmount, amount)
	}
	return nil
}

func validateDate(date time.Time) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", apperr.ErrInvalidDate)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if date.UTC().Truncate(24*time.Hour).After(today) {
		return fmt.Errorf("%w: cannot be in the future", apperr.ErrInvalidDate)
	}
	return nil
}
