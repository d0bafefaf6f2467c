package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/dhcommerce/internal/model"
)

func TestScheduledAt_InterpretsInOrgTimezone(t *testing.T) {
	loc := newYork(t)

	at, err := ScheduledAt("2025-03-20", "13:00", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2025-03-20 は夏時間(EDT, UTC-4)
	want := time.Date(2025, 3, 20, 17, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("ScheduledAt = %v, want %v", at.UTC(), want)
	}
}

func TestScheduledAt_Malformed(t *testing.T) {
	loc := newYork(t)

	tests := []struct {
		name  string
		date  string
		clock string
	}{
		{"日付なし", "", "13:00"},
		{"時刻なし", "2025-03-20", ""},
		{"両方なし", "", ""},
		{"日付の形式が違う", "03/20/2025", "13:00"},
		{"時刻の形式が違う", "2025-03-20", "1pm"},
		{"存在しない時刻", "2025-03-20", "25:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScheduledAt(tt.date, tt.clock, loc)
			if !errors.Is(err, model.ErrMalformedSchedule) {
				t.Errorf("expected ErrMalformedSchedule, got %v", err)
			}
		})
	}
}

func TestDueForReminder_Boundaries(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"ちょうどnow", now, true},
		{"30分後", now.Add(30 * time.Minute), true},
		{"ちょうど1時間後", now.Add(time.Hour), true},
		{"1時間1秒後", now.Add(time.Hour + time.Second), false},
		{"1秒前", now.Add(-time.Second), false},
		{"翌日", now.Add(24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DueForReminder(tt.at, now, time.Hour); got != tt.want {
				t.Errorf("DueForReminder(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestDueForRatingRequest_Boundaries(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 20, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"ちょうど20分前", now.Add(-20 * time.Minute), true},
		{"1日前", now.Add(-24 * time.Hour), true},
		{"19分前", now.Add(-19 * time.Minute), false},
		{"19分59秒前", now.Add(-20*time.Minute + time.Second), false},
		{"未来", now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DueForRatingRequest(tt.at, now, 20*time.Minute); got != tt.want {
				t.Errorf("DueForRatingRequest(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
