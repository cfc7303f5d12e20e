package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chrischaps/TaskMan-sub000/internal/auth"
	"github.com/chrischaps/TaskMan-sub000/internal/domain"
	"github.com/chrischaps/TaskMan-sub000/internal/events"
	"github.com/chrischaps/TaskMan-sub000/internal/lifecycle"
	"github.com/chrischaps/TaskMan-sub000/internal/postgres"
	"github.com/chrischaps/TaskMan-sub000/internal/validate"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	minPasswordLen   = 8
)

// TaskManager is the slice of the lifecycle core the handlers need.
type TaskManager interface {
	Accept(ctx context.Context, taskID, userID string) (*domain.Task, error)
	Submit(ctx context.Context, taskID, userID string, solution json.RawMessage) (*lifecycle.SubmitResult, error)
	Release(ctx context.Context, taskID, cause string) error
}

// Handler serves the TaskMan REST API.
type Handler struct {
	tasks      postgres.TaskStore
	users      postgres.UserStore
	ledger     postgres.Ledger
	manager    TaskManager
	validators *validate.Registry
	auth       *auth.Manager
	publisher  events.Publisher
	logger     *slog.Logger

	signupGrant int
	now         func() time.Time
}

func NewHandler(
	tasks postgres.TaskStore,
	users postgres.UserStore,
	ledger postgres.Ledger,
	manager TaskManager,
	validators *validate.Registry,
	authManager *auth.Manager,
	publisher events.Publisher,
	logger *slog.Logger,
	signupGrant int,
) *Handler {
	return &Handler{
		tasks:       tasks,
		users:       users,
		ledger:      ledger,
		manager:     manager,
		validators:  validators,
		auth:        authManager,
		publisher:   publisher,
		logger:      logger,
		signupGrant: signupGrant,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ─── auth ────────────────────────────────────────────────────────────────────

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

// Register handles POST /api/v1/auth/register. New accounts start with
// the configured signup grant so first-time users can afford a listing.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	ctx := r.Context()
	if _, err := h.users.GetByEmail(ctx, req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, "hash password", err)
		return
	}
	user, err := h.users.Create(ctx, req.Email, hash)
	if err != nil {
		h.internalError(w, "create user", err)
		return
	}

	balance := 0
	if h.signupGrant > 0 {
		balance, err = h.ledger.Award(ctx, user.ID, h.signupGrant, domain.ReasonSignupGrant)
		if err != nil {
			h.internalError(w, "signup grant", err)
			return
		}
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.internalError(w, "issue token", err)
		return
	}

	h.logger.Info("user registered", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, authResponse{Token: token, UserID: user.ID, Balance: balance})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.internalError(w, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: user.ID, Balance: user.TokenBalance})
}

// ─── tasks ───────────────────────────────────────────────────────────────────

type createTaskRequest struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	Solution       json.RawMessage `json:"solution"`
	TokenReward    int             `json:"token_reward"`
	Difficulty     int             `json:"difficulty"`
	EstimatedTime  int             `json:"estimated_time"`
	IsTutorial     bool            `json:"is_tutorial"`
	IsComposite    bool            `json:"is_composite"`
	ComponentCosts []int           `json:"component_costs,omitempty"`
	OrganizationID *string         `json:"organization_id,omitempty"`
	ProjectID      *string         `json:"project_id,omitempty"`
	InitiativeID   *string         `json:"initiative_id,omitempty"`
}

type createTaskResponse struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	ListingFee int       `json:"listing_fee"`
	NewBalance int       `json:"new_balance"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTask handles POST /api/v1/tasks. The creator pays a listing fee
// equal to the token reward (with a premium for composites) before the
// task becomes visible; tutorial tasks list for free.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("httpapi").Start(r.Context(), "httpapi.create_task")
	defer span.End()

	userID, _ := auth.UserIDFromContext(ctx)

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	taskType := domain.TaskType(strings.TrimSpace(req.Type))
	if !h.validators.Known(taskType) {
		writeError(w, http.StatusBadRequest, "unknown task type "+strconv.Quote(req.Type))
		return
	}
	if isEmptyJSON(req.Data) {
		writeError(w, http.StatusBadRequest, "field 'data' is required")
		return
	}
	if isEmptyJSON(req.Solution) {
		writeError(w, http.StatusBadRequest, "field 'solution' is required")
		return
	}
	if req.TokenReward <= 0 {
		writeError(w, http.StatusBadRequest, "token_reward must be positive")
		return
	}
	if req.Difficulty < 1 || req.Difficulty > 5 {
		writeError(w, http.StatusBadRequest, "difficulty must be between 1 and 5")
		return
	}
	if req.EstimatedTime <= 0 {
		writeError(w, http.StatusBadRequest, "estimated_time must be positive")
		return
	}
	if req.IsComposite && len(req.ComponentCosts) == 0 {
		writeError(w, http.StatusBadRequest, "composite tasks require component_costs")
		return
	}

	taskID := uuid.New().String()
	now := h.now()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.type", string(taskType)),
	)

	fee := h.listingFee(&req)
	newBalance := 0
	if fee > 0 {
		var err error
		newBalance, err = h.ledger.Deduct(ctx, userID, fee, domain.ReasonListingFee)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
	} else if balance, err := h.ledger.Balance(ctx, userID); err == nil {
		newBalance = balance
	}

	task := &domain.Task{
		ID:             taskID,
		Type:           taskType,
		Data:           req.Data,
		Solution:       req.Solution,
		TokenReward:    req.TokenReward,
		Difficulty:     req.Difficulty,
		EstimatedTime:  req.EstimatedTime,
		Status:         domain.StatusAvailable,
		CreatorID:      userID,
		IsTutorial:     req.IsTutorial,
		IsComposite:    req.IsComposite,
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		InitiativeID:   req.InitiativeID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.tasks.Create(ctx, task); err != nil {
		// The fee is already in the ledger; refund before reporting.
		if fee > 0 {
			if _, refundErr := h.ledger.Award(ctx, userID, fee, domain.ReasonListingFee); refundErr != nil {
				h.logger.Error("listing fee refund failed",
					slog.String("user_id", userID),
					slog.String("error", refundErr.Error()),
				)
			}
		}
		h.internalError(w, "create task", err)
		return
	}

	h.publish(ctx, events.Event{
		Kind:       events.KindCreated,
		TaskID:     taskID,
		TaskType:   string(taskType),
		UserID:     userID,
		OccurredAt: now,
	})
	h.logger.Info("task created",
		slog.String("task_id", taskID),
		slog.String("type", string(taskType)),
		slog.Int("listing_fee", fee),
	)

	writeJSON(w, http.StatusCreated, createTaskResponse{
		TaskID:     taskID,
		Status:     string(domain.StatusAvailable),
		ListingFee: fee,
		NewBalance: newBalance,
		CreatedAt:  now,
	})
}

func (h *Handler) listingFee(req *createTaskRequest) int {
	if req.IsTutorial {
		return 0
	}
	if req.IsComposite {
		return domain.CompositePremium(req.ComponentCosts)
	}
	return req.TokenReward
}

// taskResponse is the public view of a task. The stored solution is
// only disclosed once the task is completed.
type taskResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	Solution      json.RawMessage `json:"solution,omitempty"`
	TokenReward   int             `json:"token_reward"`
	Difficulty    int             `json:"difficulty"`
	EstimatedTime int             `json:"estimated_time"`
	Status        string          `json:"status"`
	AcceptedByID  *string         `json:"accepted_by_id,omitempty"`
	AcceptedAt    *time.Time      `json:"accepted_at,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatorID     string          `json:"creator_id"`
	IsOwnTask     bool            `json:"is_own_task"`
	IsTutorial    bool            `json:"is_tutorial"`
	IsComposite   bool            `json:"is_composite"`
	CreatedAt     time.Time       `json:"created_at"`
}

func taskView(task *domain.Task, viewerID string) taskResponse {
	resp := taskResponse{
		ID:            task.ID,
		Type:          string(task.Type),
		Data:          task.Data,
		TokenReward:   task.TokenReward,
		Difficulty:    task.Difficulty,
		EstimatedTime: task.EstimatedTime,
		Status:        string(task.Status),
		AcceptedByID:  task.AcceptedByID,
		AcceptedAt:    task.AcceptedAt,
		ExpiresAt:     task.ExpiresAt,
		CompletedAt:   task.CompletedAt,
		CreatorID:     task.CreatorID,
		IsOwnTask:     task.CreatorID == viewerID,
		IsTutorial:    task.IsTutorial,
		IsComposite:   task.IsComposite,
		CreatedAt:     task.CreatedAt,
	}
	if task.Status == domain.StatusCompleted {
		resp.Solution = task.Solution
	}
	return resp
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListLimit)
	}

	tasks, err := h.tasks.ListAvailable(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list tasks", err)
		return
	}

	views := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView(task, userID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	task, err := h.tasks.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(task, userID))
}

// AcceptTask handles POST /api/v1/tasks/{id}/accept.
func (h *Handler) AcceptTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	task, err := h.manager.Accept(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(task, userID))
}

type submitRequest struct {
	Solution json.RawMessage `json:"solution"`
}

type submitResponse struct {
	Success       bool   `json:"success"`
	Details       string `json:"details,omitempty"`
	TokensAwarded int    `json:"tokens_awarded,omitempty"`
	NewBalance    int    `json:"new_balance,omitempty"`
}

// SubmitTask handles POST /api/v1/tasks/{id}/submit. An incorrect
// solution is a 200 with success=false; the claim stays open.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if isEmptyJSON(req.Solution) {
		writeError(w, http.StatusBadRequest, "field 'solution' is required")
		return
	}

	result, err := h.manager.Submit(r.Context(), chi.URLParam(r, "id"), userID, req.Solution)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:       result.Success,
		Details:       result.Details,
		TokensAwarded: result.TokensAwarded,
		NewBalance:    result.NewBalance,
	})
}

// ReleaseTask handles POST /api/v1/tasks/{id}/release. Only the current
// claimer may abandon a claim; releasing an already-available task is a
// no-op success.
func (h *Handler) ReleaseTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	taskID := chi.URLParam(r, "id")

	task, err := h.tasks.GetByID(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if task.Status == domain.StatusInProgress && (task.AcceptedByID == nil || *task.AcceptedByID != userID) {
		h.writeDomainError(w, &domain.NotYourTaskError{TaskID: taskID, UserID: userID})
		return
	}
	if task.Status.IsTerminal() {
		h.writeDomainError(w, &domain.TaskNotAvailableError{TaskID: taskID, Status: task.Status})
		return
	}

	if err := h.manager.Release(r.Context(), taskID, lifecycle.CauseAbandon); err != nil {
		h.internalError(w, "release task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusAvailable)})
}

// ─── me ──────────────────────────────────────────────────────────────────────

// Balance handles GET /api/v1/me/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

// Transactions handles GET /api/v1/me/transactions, newest first.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListLimit)
	}

	history, err := h.ledger.History(r.Context(), userID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if history == nil {
		history = []*domain.TokenTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

// ─── plumbing ────────────────────────────────────────────────────────────────

// writeDomainError maps typed domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound     *domain.TaskNotFoundError
		notAvailable *domain.TaskNotAvailableError
		notYours     *domain.NotYourTaskError
		expired      *domain.TaskExpiredError
		unknownType  *domain.UnknownTaskTypeError
		badAmount    *domain.InvalidAmountError
		insufficient *domain.InsufficientBalanceError
		noUser       *domain.UserNotFoundError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &noUser):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notAvailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notYours):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &expired):
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &unknownType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		h.internalError(w, "request failed", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) publish(ctx context.Context, ev events.Event) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Error("event publish failed",
			slog.String("kind", ev.Kind),
			slog.String("task_id", ev.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
