// Package service реализует бизнес-логику сервиса бронирования занятий.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/classcredit-system/internal/model"
	"github.com/mmeshcher/classcredit-system/internal/payments"
	"github.com/mmeshcher/classcredit-system/internal/validation"
)

// ErrInvalidInterval возвращается, если конец занятия не позже его начала.
var (
	ErrInvalidInterval = errors.New("invalid slot interval")
	// ErrInvalidCost возвращается при отрицательной стоимости слота.
	ErrInvalidCost = errors.New("invalid slot cost")
	// ErrInvalidAmount возвращается при неположительной сумме пополнения.
	ErrInvalidAmount = errors.New("invalid topup amount")
	// ErrInvalidUser возвращается при незаданном идентификаторе пользователя.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrPaymentNotFound возвращается, если платёжная система не знает такой платёж.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentNotConfirmed возвращается, если платёж ещё не подтверждён.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrPaymentDeclined возвращается, если платёж отклонён платёжной системой.
	ErrPaymentDeclined = errors.New("payment declined")
)

// recentTransactions ограничивает историю на экране тренера.
const recentTransactions = 10

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateSlot(ctx context.Context, slot *model.ClassSlot) error
	GetSlotByID(ctx context.Context, slotID string) (*model.ClassSlot, error)
	ListSlotsByDate(ctx context.Context, date time.Time) ([]model.ClassSlot, error)
	ListSlotsByCoach(ctx context.Context, coachID int64) ([]model.ClassSlot, error)
	UpdateSlot(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error)
	DeleteSlot(ctx context.Context, slotID string, requester int64) error
	BookSlot(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error)
	FinishSlot(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error)
	CancelBooking(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error)
	AppendTopUp(ctx context.Context, userID, amount int64, paymentID *string) (*model.CreditTransaction, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetTransactions(ctx context.Context, userID int64, from, to *time.Time) ([]model.CreditTransaction, error)
	GetMonthlyTotals(ctx context.Context, userID int64, year int) ([]model.MonthlyTotal, error)
}

// Service содержит бизнес-логику сервиса бронирования занятий.
type Service struct {
	repo           Repository
	paymentsClient *payments.Client
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом платёжной системы.
func NewService(repo Repository, paymentsClient *payments.Client) *Service {
	return &Service{
		repo:           repo,
		paymentsClient: paymentsClient,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateSlot создаёт новый слот занятия в состоянии available.
// Имя инструктора передаётся вызывающей стороной явно: сервис не хранит
// никакой неявной сессионной идентичности.
func (s *Service) CreateSlot(ctx context.Context, creatorID int64, instructorName string, start, end time.Time, creditCost int64) (*model.ClassSlot, error) {
	if !validation.IsValidUserID(creatorID) {
		return nil, ErrInvalidUser
	}
	if !validation.IsValidInterval(start, end) {
		return nil, ErrInvalidInterval
	}
	if !validation.IsValidCost(creditCost) {
		return nil, ErrInvalidCost
	}

	slot := &model.ClassSlot{
		CreatorID:      creatorID,
		InstructorName: instructorName,
		StartTime:      start,
		EndTime:        end,
		TimeLabel:      model.FormatTimeLabel(start, end),
		CreditCost:     creditCost,
		ClassDate:      model.ClassDateOf(start),
	}

	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}

	return slot, nil
}

// EditSlot применяет частичное изменение слота от имени его создателя.
// Изменение стоимости после бронирования не переоценивает уже сделанное
// списание: выплата при завершении идёт по зафиксированной цене.
func (s *Service) EditSlot(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error) {
	if patch.CreditCost != nil && !validation.IsValidCost(*patch.CreditCost) {
		return nil, ErrInvalidCost
	}

	if patch.StartTime != nil || patch.EndTime != nil {
		current, err := s.repo.GetSlotByID(ctx, slotID)
		if err != nil {
			return nil, err
		}

		start := current.StartTime
		end := current.EndTime
		if patch.StartTime != nil {
			start = *patch.StartTime
		}
		if patch.EndTime != nil {
			end = *patch.EndTime
		}

		if !validation.IsValidInterval(start, end) {
			return nil, ErrInvalidInterval
		}
	}

	return s.repo.UpdateSlot(ctx, slotID, requester, patch)
}

// DeleteSlot удаляет слот от имени его создателя. Забронированный слот
// возвращает кредиты студенту, завершённый не удаляется.
func (s *Service) DeleteSlot(ctx context.Context, slotID string, requester int64) error {
	return s.repo.DeleteSlot(ctx, slotID, requester)
}

// BookSlot бронирует слот для студента, атомарно списывая его стоимость.
func (s *Service) BookSlot(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error) {
	if !validation.IsValidUserID(studentID) {
		return nil, ErrInvalidUser
	}
	return s.repo.BookSlot(ctx, slotID, studentID)
}

// FinishSlot завершает занятие и выплачивает тренеру стоимость, списанную при бронировании.
func (s *Service) FinishSlot(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	return s.repo.FinishSlot(ctx, slotID, requester)
}

// CancelBooking снимает бронь и полностью возвращает студенту кредиты.
func (s *Service) CancelBooking(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	return s.repo.CancelBooking(ctx, slotID, requester)
}

// TopUp пополняет баланс пользователя на указанную сумму.
func (s *Service) TopUp(ctx context.Context, userID, amount int64) (*model.CreditTransaction, error) {
	if !validation.IsValidUserID(userID) {
		return nil, ErrInvalidUser
	}
	if !validation.IsValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	return s.repo.AppendTopUp(ctx, userID, amount, nil)
}

// RedeemPayment зачисляет подтверждённый платёж из внешней платёжной системы.
// Каждый платёж может быть зачислен не более одного раза.
func (s *Service) RedeemPayment(ctx context.Context, userID int64, paymentID string) (*model.CreditTransaction, error) {
	if !validation.IsValidUserID(userID) {
		return nil, ErrInvalidUser
	}

	payment, statusCode, _, err := s.paymentsClient.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}

	if payment == nil {
		if statusCode == http.StatusTooManyRequests {
			return nil, ErrPaymentNotConfirmed
		}
		return nil, ErrPaymentNotFound
	}

	switch payment.Status {
	case payments.StatusConfirmed:
	case payments.StatusPending:
		return nil, ErrPaymentNotConfirmed
	case payments.StatusDeclined:
		return nil, ErrPaymentDeclined
	default:
		return nil, fmt.Errorf("unknown payment status: %s", payment.Status)
	}

	if !validation.IsValidAmount(payment.Amount) {
		return nil, ErrInvalidAmount
	}

	return s.repo.AppendTopUp(ctx, userID, payment.Amount, &paymentID)
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	current, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current}, nil
}

// GetSlotsByDate возвращает слоты на дату, упорядоченные по времени начала.
func (s *Service) GetSlotsByDate(ctx context.Context, date time.Time) ([]model.ClassSlot, error) {
	return s.repo.ListSlotsByDate(ctx, date)
}

// GetSlotsByCoach возвращает все слоты тренера.
func (s *Service) GetSlotsByCoach(ctx context.Context, coachID int64) ([]model.ClassSlot, error) {
	return s.repo.ListSlotsByCoach(ctx, coachID)
}

// GetHistory возвращает историю транзакций пользователя от новых к старым.
func (s *Service) GetHistory(ctx context.Context, userID int64, from, to *time.Time) ([]model.CreditTransaction, error) {
	return s.repo.GetTransactions(ctx, userID, from, to)
}

// GetMonthlySummary возвращает помесячные итоги за год. Месяцы без транзакций
// присутствуют в ответе с нулевыми суммами.
func (s *Service) GetMonthlySummary(ctx context.Context, userID int64, year int) ([]model.MonthlyTotal, error) {
	totals, err := s.repo.GetMonthlyTotals(ctx, userID, year)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[time.Month]model.MonthlyTotal, len(totals))
	for _, t := range totals {
		byMonth[t.Month] = t
	}

	res := make([]model.MonthlyTotal, 0, 12)
	for m := time.January; m <= time.December; m++ {
		t, ok := byMonth[m]
		if !ok {
			t = model.MonthlyTotal{Month: m}
		}
		res = append(res, t)
	}

	return res, nil
}

// GetDashboard собирает данные экрана тренера за день: слоты, баланс и
// последние транзакции читаются параллельно и объединяются после завершения
// всех трёх запросов.
func (s *Service) GetDashboard(ctx context.Context, coachID int64, date time.Time) (*model.Dashboard, error) {
	if !validation.IsValidUserID(coachID) {
		return nil, ErrInvalidUser
	}

	var (
		slots        []model.ClassSlot
		balance      int64
		transactions []model.CreditTransaction
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		all, err := s.repo.ListSlotsByCoach(gctx, coachID)
		if err != nil {
			return err
		}
		day := model.ClassDateOf(date)
		for _, slot := range all {
			if slot.ClassDate.Equal(day) {
				slots = append(slots, slot)
			}
		}
		return nil
	})

	g.Go(func() error {
		var err error
		balance, err = s.repo.GetBalance(gctx, coachID)
		return err
	})

	g.Go(func() error {
		history, err := s.repo.GetTransactions(gctx, coachID, nil, nil)
		if err != nil {
			return err
		}
		if len(history) > recentTransactions {
			history = history[:recentTransactions]
		}
		transactions = history
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Dashboard{
		Slots:        slots,
		Balance:      balance,
		Transactions: transactions,
	}, nil
}
