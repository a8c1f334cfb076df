// Package validation содержит функции валидации входных данных.
package validation

import "time"

// IsValidInterval проверяет, что интервал занятия задан и конец строго позже начала.
func IsValidInterval(start, end time.Time) bool {
	if start.IsZero() || end.IsZero() {
		return false
	}
	return end.After(start)
}

// IsValidCost проверяет, что стоимость слота неотрицательна.
func IsValidCost(cost int64) bool {
	return cost >= 0
}

// IsValidAmount проверяет, что сумма пополнения строго положительна.
func IsValidAmount(amount int64) bool {
	return amount > 0
}

// IsValidUserID проверяет, что идентификатор пользователя задан.
func IsValidUserID(id int64) bool {
	return id > 0
}
