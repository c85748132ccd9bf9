package repository

import (
	"testing"
	"time"
)

func TestOverdueDaysBetween(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		returnTime time.Time
		want       int
	}{
		{"returned early", due.AddDate(0, 0, -3), 0},
		{"returned on time", due, 0},
		{"partial day is not overdue", due.Add(23 * time.Hour), 0},
		{"one full day", due.Add(24 * time.Hour), 1},
		{"five days", due.AddDate(0, 0, 5), 5},
		{"forty days", due.AddDate(0, 0, 40), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overdueDaysBetween(due, tt.returnTime); got != tt.want {
				t.Fatalf("expected %d overdue days, got %d", tt.want, got)
			}
		})
	}
}

func TestFineAmountCents(t *testing.T) {
	// Выдача на 30 дней, возврат через 35: пять дней просрочки,
	// штраф 5.00 руб. при ставке рубль в день.
	borrowTime := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	due := borrowTime.AddDate(0, 0, 30)
	returnTime := borrowTime.AddDate(0, 0, 35)

	days := overdueDaysBetween(due, returnTime)
	if days != 5 {
		t.Fatalf("expected 5 overdue days, got %d", days)
	}
	if got := fineAmountCents(days, 100); got != 500 {
		t.Fatalf("expected fine of 500 cents, got %d", got)
	}
}
