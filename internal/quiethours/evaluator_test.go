package quiethours

import (
	"testing"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

func TestCheckDisabledReturnsNotQuiet(t *testing.T) {
	qh := model.QuietHours{Enabled: false}
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	result, err := Check(qh, now)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if result.IsQuiet {
		t.Error("disabled quiet hours should never be quiet")
	}
}

func TestCheckNonWrappingWindow(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "23:30", Timezone: "UTC"}

	inside := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	result, err := Check(qh, inside)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !result.IsQuiet {
		t.Error("22:30 should be inside a 22:00-23:30 window")
	}
	wantNext := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	if !result.NextAvailableAt.Equal(wantNext) {
		t.Errorf("NextAvailableAt = %v, want %v", result.NextAvailableAt, wantNext)
	}

	outside := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result, err = Check(qh, outside)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if result.IsQuiet {
		t.Error("12:00 should be outside a 22:00-23:30 window")
	}
}

func TestCheckWrappingWindowInsideAfterMidnightSide(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}

	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	result, err := Check(qh, now)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !result.IsQuiet {
		t.Error("23:30 should be inside a wrapping 22:00-07:00 window")
	}
	wantNext := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	if !result.NextAvailableAt.Equal(wantNext) {
		t.Errorf("NextAvailableAt = %v, want %v (tomorrow)", result.NextAvailableAt, wantNext)
	}
}

func TestCheckWrappingWindowInsideBeforeMidnightSide(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}

	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	result, err := Check(qh, now)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !result.IsQuiet {
		t.Error("03:00 should be inside a wrapping 22:00-07:00 window")
	}
	wantNext := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	if !result.NextAvailableAt.Equal(wantNext) {
		t.Errorf("NextAvailableAt = %v, want %v (today)", result.NextAvailableAt, wantNext)
	}
}

func TestCheckWrappingWindowOutside(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result, err := Check(qh, now)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if result.IsQuiet {
		t.Error("12:00 should be outside a wrapping 22:00-07:00 window")
	}
}

func TestIsUrgent(t *testing.T) {
	tests := []struct {
		category model.Category
		priority model.Priority
		urgent   bool
		want     bool
	}{
		{model.CategoryFollow, model.PriorityNormal, true, true},
		{model.CategoryFollow, model.PriorityHigh, false, true},
		{model.CategoryFollow, model.PriorityCritical, false, true},
		{model.CategoryMention, model.PriorityNormal, false, true},
		{model.CategoryMessage, model.PriorityLow, false, true},
		{model.CategoryLike, model.PriorityLow, false, false},
	}
	for _, tt := range tests {
		if got := IsUrgent(tt.category, tt.priority, tt.urgent); got != tt.want {
			t.Errorf("IsUrgent(%v, %v, %v) = %v, want %v", tt.category, tt.priority, tt.urgent, got, tt.want)
		}
	}
}
