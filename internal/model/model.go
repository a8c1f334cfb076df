// Package model содержит доменные сущности сервиса бронирования занятий.
package model

import "time"

// SlotState описывает состояние жизненного цикла слота занятия.
type SlotState string

const (
	SlotStateAvailable SlotState = "available"
	SlotStateBooked    SlotState = "booked"
	SlotStateFinished  SlotState = "finished"
)

// ClassSlot описывает слот занятия, созданный тренером.
type ClassSlot struct {
	ID             string
	CreatorID      int64
	InstructorName string
	StartTime      time.Time
	EndTime        time.Time
	TimeLabel      string
	CreditCost     int64
	ClassDate      time.Time
	State          SlotState
	StudentID      *int64
	// ChargedCredits фиксирует цену, списанную при бронировании.
	// Выплата тренеру при завершении использует именно её, а не текущую
	// стоимость слота.
	ChargedCredits *int64
	CreatedAt      time.Time
}

// FormatTimeLabel возвращает человекочитаемую метку интервала занятия.
func FormatTimeLabel(start, end time.Time) string {
	return start.Format("15:04") + "-" + end.Format("15:04")
}

// ClassDateOf возвращает календарную дату занятия по моменту его начала.
func ClassDateOf(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, start.Location())
}

// TransactionCategory описывает причину движения кредитов.
type TransactionCategory string

const (
	TransactionTopUp      TransactionCategory = "topup"
	TransactionBooking    TransactionCategory = "booking"
	TransactionRefund     TransactionCategory = "refund"
	TransactionCompletion TransactionCategory = "completion"
)

// CreditTransaction описывает одну запись журнала движения кредитов.
// Журнал append-only: записи никогда не изменяются и не удаляются.
type CreditTransaction struct {
	ID        string
	UserID    int64
	Amount    int64
	Category  TransactionCategory
	SlotID    *string
	PaymentID *string
	CreatedAt time.Time
}

// Balance содержит текущий баланс пользователя в кредитах.
type Balance struct {
	Current int64 `json:"current"`
}

// SlotPatch описывает частичное изменение слота. Nil-поле означает
// «оставить как есть».
type SlotPatch struct {
	InstructorName *string
	StartTime      *time.Time
	EndTime        *time.Time
	CreditCost     *int64
}

// MonthlyTotal содержит суммарное движение кредитов пользователя за месяц.
type MonthlyTotal struct {
	Month    time.Month
	Credited int64
	Debited  int64
	Net      int64
}

// Dashboard объединяет данные для экрана тренера за один день.
type Dashboard struct {
	Slots        []ClassSlot
	Balance      int64
	Transactions []CreditTransaction
}
