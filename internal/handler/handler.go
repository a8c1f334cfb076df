// Package handler содержит HTTP-обработчики API сервиса бронирования занятий.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/classcredit-system/internal/middleware"
	"github.com/mmeshcher/classcredit-system/internal/model"
	"github.com/mmeshcher/classcredit-system/internal/repository"
	"github.com/mmeshcher/classcredit-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateSlot(ctx context.Context, creatorID int64, instructorName string, start, end time.Time, creditCost int64) (*model.ClassSlot, error)
	EditSlot(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error)
	DeleteSlot(ctx context.Context, slotID string, requester int64) error
	BookSlot(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error)
	FinishSlot(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error)
	CancelBooking(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error)
	TopUp(ctx context.Context, userID, amount int64) (*model.CreditTransaction, error)
	RedeemPayment(ctx context.Context, userID int64, paymentID string) (*model.CreditTransaction, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	GetSlotsByDate(ctx context.Context, date time.Time) ([]model.ClassSlot, error)
	GetSlotsByCoach(ctx context.Context, coachID int64) ([]model.ClassSlot, error)
	GetHistory(ctx context.Context, userID int64, from, to *time.Time) ([]model.CreditTransaction, error)
	GetMonthlySummary(ctx context.Context, userID int64, year int) ([]model.MonthlyTotal, error)
	GetDashboard(ctx context.Context, coachID int64, date time.Time) (*model.Dashboard, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования занятий.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type slotResponse struct {
	ID             string `json:"id"`
	CreatorID      int64  `json:"creator_id"`
	InstructorName string `json:"instructor_name"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	TimeLabel      string `json:"time_label"`
	CreditCost     int64  `json:"credit_cost"`
	Date           string `json:"date"`
	State          string `json:"state"`
	StudentID      *int64 `json:"student_id,omitempty"`
	ChargedCredits *int64 `json:"charged_credits,omitempty"`
}

func toSlotResponse(slot *model.ClassSlot) slotResponse {
	return slotResponse{
		ID:             slot.ID,
		CreatorID:      slot.CreatorID,
		InstructorName: slot.InstructorName,
		StartTime:      slot.StartTime.Format(time.RFC3339),
		EndTime:        slot.EndTime.Format(time.RFC3339),
		TimeLabel:      slot.TimeLabel,
		CreditCost:     slot.CreditCost,
		Date:           slot.ClassDate.Format("2006-01-02"),
		State:          string(slot.State),
		StudentID:      slot.StudentID,
		ChargedCredits: slot.ChargedCredits,
	}
}

type transactionResponse struct {
	ID        string  `json:"id"`
	UserID    int64   `json:"user_id"`
	Amount    int64   `json:"amount"`
	Category  string  `json:"category"`
	SlotID    *string `json:"slot_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func toTransactionResponse(t model.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Amount:    t.Amount,
		Category:  string(t.Category),
		SlotID:    t.SlotID,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

type createSlotRequest struct {
	InstructorName string `json:"instructor_name"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	CreditCost     int64  `json:"credit_cost"`
}

// CreateSlot создаёт новый слот занятия от имени текущего пользователя.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	slot, err := h.service.CreateSlot(r.Context(), userID, req.InstructorName, start, end, req.CreditCost)
	if err != nil {
		h.writeServiceError(w, err, "create slot")
		return
	}

	h.writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

type editSlotRequest struct {
	InstructorName *string `json:"instructor_name,omitempty"`
	StartTime      *string `json:"start_time,omitempty"`
	EndTime        *string `json:"end_time,omitempty"`
	CreditCost     *int64  `json:"credit_cost,omitempty"`
}

// EditSlot применяет частичное изменение слота.
func (h *Handler) EditSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req editSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	patch := model.SlotPatch{
		InstructorName: req.InstructorName,
		CreditCost:     req.CreditCost,
	}

	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		patch.StartTime = &start
	}
	if req.EndTime != nil {
		end, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		patch.EndTime = &end
	}

	slot, err := h.service.EditSlot(r.Context(), chi.URLParam(r, "slotID"), userID, patch)
	if err != nil {
		h.writeServiceError(w, err, "edit slot")
		return
	}

	h.writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

// DeleteSlot удаляет слот текущего пользователя.
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteSlot(r.Context(), chi.URLParam(r, "slotID"), userID); err != nil {
		h.writeServiceError(w, err, "delete slot")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BookSlot бронирует слот для текущего пользователя.
func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	slot, err := h.service.BookSlot(r.Context(), chi.URLParam(r, "slotID"), userID)
	if err != nil {
		h.writeServiceError(w, err, "book slot")
		return
	}

	h.writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

// FinishSlot завершает занятие и выплачивает кредиты тренеру.
func (h *Handler) FinishSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	slot, err := h.service.FinishSlot(r.Context(), chi.URLParam(r, "slotID"), userID)
	if err != nil {
		h.writeServiceError(w, err, "finish slot")
		return
	}

	h.writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

// CancelBooking снимает бронь со слота с полным возвратом кредитов студенту.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	slot, err := h.service.CancelBooking(r.Context(), chi.URLParam(r, "slotID"), userID)
	if err != nil {
		h.writeServiceError(w, err, "cancel booking")
		return
	}

	h.writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

// ListSlotsByDate возвращает слоты на указанную дату.
func (h *Handler) ListSlotsByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	slots, err := h.service.GetSlotsByDate(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, err, "list slots by date")
		return
	}

	h.writeSlotList(w, slots)
}

// ListSlotsByCoach возвращает все слоты тренера.
func (h *Handler) ListSlotsByCoach(w http.ResponseWriter, r *http.Request) {
	coachID, err := strconv.ParseInt(chi.URLParam(r, "coachID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	slots, err := h.service.GetSlotsByCoach(r.Context(), coachID)
	if err != nil {
		h.writeServiceError(w, err, "list slots by coach")
		return
	}

	h.writeSlotList(w, slots)
}

type topUpRequest struct {
	Amount    int64  `json:"amount,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// TopUp пополняет баланс текущего пользователя: либо напрямую на указанную
// сумму, либо зачислением подтверждённого платежа по его идентификатору.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var (
		t   *model.CreditTransaction
		err error
	)

	if req.PaymentID != "" {
		t, err = h.service.RedeemPayment(r.Context(), userID, req.PaymentID)
	} else {
		t, err = h.service.TopUp(r.Context(), userID, req.Amount)
	}
	if err != nil {
		h.writeServiceError(w, err, "topup")
		return
	}

	h.writeJSON(w, http.StatusOK, toTransactionResponse(*t))
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "get balance")
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// GetHistory возвращает историю транзакций текущего пользователя от новых к старым.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		from = &parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		to = &parsed
	}

	history, err := h.service.GetHistory(r.Context(), userID, from, to)
	if err != nil {
		h.writeServiceError(w, err, "get history")
		return
	}

	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(history))
	for _, t := range history {
		resp = append(resp, toTransactionResponse(t))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type monthlyTotalResponse struct {
	Month    int   `json:"month"`
	Credited int64 `json:"credited"`
	Debited  int64 `json:"debited"`
	Net      int64 `json:"net"`
}

// GetMonthlySummary возвращает помесячные итоги текущего пользователя за год.
func (h *Handler) GetMonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	totals, err := h.service.GetMonthlySummary(r.Context(), userID, year)
	if err != nil {
		h.writeServiceError(w, err, "get monthly summary")
		return
	}

	resp := make([]monthlyTotalResponse, 0, len(totals))
	for _, t := range totals {
		resp = append(resp, monthlyTotalResponse{
			Month:    int(t.Month),
			Credited: t.Credited,
			Debited:  t.Debited,
			Net:      t.Net,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type dashboardResponse struct {
	Slots        []slotResponse        `json:"slots"`
	Balance      int64                 `json:"balance"`
	Transactions []transactionResponse `json:"transactions"`
}

// GetDashboard возвращает сводку тренера за день.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	coachID, err := strconv.ParseInt(chi.URLParam(r, "coachID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	dashboard, err := h.service.GetDashboard(r.Context(), coachID, date)
	if err != nil {
		h.writeServiceError(w, err, "get dashboard")
		return
	}

	resp := dashboardResponse{
		Slots:        make([]slotResponse, 0, len(dashboard.Slots)),
		Balance:      dashboard.Balance,
		Transactions: make([]transactionResponse, 0, len(dashboard.Transactions)),
	}
	for i := range dashboard.Slots {
		resp.Slots = append(resp.Slots, toSlotResponse(&dashboard.Slots[i]))
	}
	for _, t := range dashboard.Transactions {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(t))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeSlotList(w http.ResponseWriter, slots []model.ClassSlot) {
	if len(slots) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]slotResponse, 0, len(slots))
	for i := range slots {
		resp = append(resp, toSlotResponse(&slots[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeServiceError транслирует бизнес-ошибки в HTTP-статусы.
// Валидационные ошибки и конфликты состояния возвращаются без логирования,
// неожиданные ошибки логируются.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, repository.ErrSlotNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, repository.ErrInsufficientCredits):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	case errors.Is(err, repository.ErrSlotNotAvailable),
		errors.Is(err, repository.ErrSlotNotBooked),
		errors.Is(err, repository.ErrSlotFinished),
		errors.Is(err, repository.ErrPaymentAlreadyRedeemed),
		errors.Is(err, service.ErrPaymentNotConfirmed):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	case errors.Is(err, service.ErrPaymentDeclined):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrInvalidInterval),
		errors.Is(err, repository.ErrInvalidInterval),
		errors.Is(err, service.ErrInvalidCost),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidUser):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	case errors.Is(err, repository.ErrUnavailable):
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
