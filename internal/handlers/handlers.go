package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-approval/internal/access"
	"expense-approval/internal/apperr"
	"expense-approval/internal/approval"
	"expense-approval/internal/auth"
	"expense-approval/internal/models"
	"expense-approval/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db              *storage.DB
	engine          *approval.Engine
	sessionDuration time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, engine *approval.Engine, sessionDuration time.Duration) *Handlers {
	return &Handlers{db: db, engine: engine, sessionDuration: sessionDuration}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware resolves the bearer token on the request to a user and
// rejects anonymous or stale credentials. A missing credential is an
// authentication failure, distinct from the authorization failures the
// individual handlers produce.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, apperr.ErrAuthRequired)
			return
		}

		user, err := h.db.ValidateSession(token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
}

// Signup registers a new employee account and issues a session for it.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.db.CreateUser(req.Name, req.Email, hash, models.RoleEmployee)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.issueSession(user)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, Role: user.Role})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// dummyPasswordHash is a bcrypt hash of an unused filler value at the
// default cost. Login compares against it when the email is unknown, so
// the miss path costs the same as a wrong password and response timing
// does not reveal which addresses are registered.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Login authenticates an email/password pair and issues a session token.
// Unknown email and wrong password produce the same error, so callers
// cannot probe which addresses are registered.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		auth.CheckPassword(req.Password, dummyPasswordHash)
		writeError(w, apperr.ErrInvalidCredentials)
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, apperr.ErrInvalidCredentials)
		return
	}

	token, err := h.issueSession(user)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, Role: user.Role})
}

func (h *Handlers) issueSession(user *models.User) (string, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	if err := h.db.CreateSession(token, user.ID, now, now.Add(h.sessionDuration)); err != nil {
		return "", err
	}
	return token, nil
}

// Logout invalidates the caller's session. It resolves the bearer token
// itself rather than going through AuthMiddleware: logging out must
// succeed even when the session is already gone, so a repeated logout
// returns 204, not an authentication error.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, apperr.ErrAuthRequired)
		return
	}
	if err := h.db.DeleteSession(token); err != nil {
		slog.Error("failed to delete session", "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type expenseRequest struct {
	Amount      *float64 `json:"amount"`
	Currency    *string  `json:"currency"`
	Category    *string  `json:"category"`
	Description *string  `json:"description"`
	Date        *string  `json:"date"`
}

// CreateExpense files a new expense owned by the caller.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if err := access.CanCreateExpense(user); err != nil {
		writeError(w, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Amount == nil || req.Currency == nil || req.Category == nil || req.Date == nil {
		writeBadRequest(w, "amount, currency, category and date are required")
		return
	}
	date, err := parseDate(*req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	var description string
	if req.Description != nil {
		description = *req.Description
	}

	expense, err := h.db.CreateExpense(user.ID, *req.Amount, *req.Currency, *req.Category, description, date)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("expense created", "expense_id", expense.ID, "owner_id", user.ID)
	writeJSON(w, http.StatusCreated, expense)
}

// ListExpenses returns the caller's own expenses, newest first.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if user == nil {
		writeError(w, apperr.ErrAuthRequired)
		return
	}

	expenses, err := h.db.ListByOwner(user.ID)
	if err != nil {
		slog.Error("failed to list expenses", "error", err, "owner_id", user.ID)
		writeError(w, err)
		return
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense returns a single expense to its owner or to an approver.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	expense, err := h.db.GetExpense(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := access.CanViewExpense(user, expense); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// UpdateExpense edits a pending expense on behalf of its owner.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	fields := storage.UpdateFields{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		fields.Date = &date
	}

	// Ownership is checked inside the guarded update as well, but the gate
	// runs first so a non-owner gets Forbidden before any lifecycle error.
	if expense, err := h.db.GetExpense(id); err != nil {
		writeError(w, err)
		return
	} else if err := access.CanUpdateExpense(user, expense); err != nil {
		writeError(w, err)
		return
	}

	expense, err := h.db.UpdateExpense(id, user.ID, fields)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("expense updated", "expense_id", expense.ID, "owner_id", user.ID)
	writeJSON(w, http.StatusOK, expense)
}

// ApprovalsQueue returns all pending expenses, oldest first. Approvers only.
func (h *Handlers) ApprovalsQueue(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if err := access.CanViewQueue(user); err != nil {
		writeError(w, err)
		return
	}

	queue, err := h.engine.Queue()
	if err != nil {
		slog.Error("failed to list approvals queue", "error", err)
		writeError(w, err)
		return
	}
	if queue == nil {
		queue = []models.Expense{}
	}
	writeJSON(w, http.StatusOK, queue)
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

// Decide approves or rejects a pending expense.
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	outcome, err := approval.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}

	expense, err := h.engine.Decide(id, user, outcome, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("expense decided",
		"expense_id", expense.ID,
		"decided_by", user.ID,
		"status", expense.Status,
	)
	writeJSON(w, http.StatusOK, expense)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrNotFound
	}
	return id, nil
}

func parseDate(s string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: want YYYY-MM-DD", apperr.ErrInvalidDate)
	}
	return date, nil
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "validation_error", Message: message}})
}

// writeError maps the error taxonomy to HTTP statuses and a stable
// machine-readable code. Anything unrecognized is a 500 with no internals
// leaked to the caller.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, apperr.ErrInvalidAmount),
		errors.Is(err, apperr.ErrInvalidDate),
		errors.Is(err, apperr.ErrEmptyCategory),
		errors.Is(err, apperr.ErrInvalidOutcome),
		errors.Is(err, apperr.ErrInvalidRole):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperr.ErrUnsupportedCurrency):
		status, code = http.StatusBadRequest, "unsupported_currency"
	case errors.Is(err, apperr.ErrAuthRequired):
		status, code = http.StatusUnauthorized, "authentication_required"
	case errors.Is(err, apperr.ErrInvalidToken):
		status, code = http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, apperr.ErrExpiredToken):
		status, code = http.StatusUnauthorized, "expired_token"
	case errors.Is(err, apperr.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperr.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, apperr.ErrDuplicateEmail):
		status, code = http.StatusConflict, "duplicate_email"
	default:
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{Code: "internal_error", Message: "internal server error"},
		})
		return
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}
