package model

import (
	"testing"
	"time"
)

func TestFormatTimeLabel(t *testing.T) {
	start := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC)

	if got := FormatTimeLabel(start, end); got != "09:30-11:00" {
		t.Fatalf("FormatTimeLabel() = %q, want %q", got, "09:30-11:00")
	}
}

func TestClassDateOf(t *testing.T) {
	start := time.Date(2026, time.March, 10, 23, 45, 0, 0, time.UTC)

	got := ClassDateOf(start)
	want := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	if !got.Equal(want) {
		t.Fatalf("ClassDateOf() = %v, want %v", got, want)
	}
}
