package domain_test

import (
	"testing"
	"time"

	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCalendarDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-06-01", "2025-06-01", true},
		{"2025-06-01T00:00:00.000Z", "2025-06-01", true},
		{"2025-06-01T18:30:00+05:30", "2025-06-01", true},
		{"2025-06-01 09:15:00", "2025-06-01", true},
		{" 2025-06-01 ", "2025-06-01", true},
		{"", "", false},
		{"June 1st", "", false},
	}
	for _, tt := range tests {
		got, ok := domain.CalendarDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsPastDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.Local)
	today := domain.Today(now)

	assert.Equal(t, "2026-03-10", today)
	assert.True(t, domain.IsPastDate("2026-03-09", today))
	assert.False(t, domain.IsPastDate("2026-03-10", today))
	assert.False(t, domain.IsPastDate("2026-03-11", today))
}
