package domain

import (
	"testing"
	"time"

	"github.com/smallbiznis/bursar/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestCategorizeDefaultBuckets(t *testing.T) {
	buckets := config.DefaultBillingConfig().AgingBuckets

	cases := []struct {
		days    int
		balance int64
		want    string
	}{
		{days: 0, balance: 50000, want: "current"},
		{days: 45, balance: 0, want: "current"},
		{days: 10, balance: -200, want: "current"},
		{days: 1, balance: 50000, want: "1-30"},
		{days: 30, balance: 50000, want: "1-30"},
		{days: 31, balance: 50000, want: "31-60"},
		{days: 60, balance: 50000, want: "31-60"},
		{days: 61, balance: 50000, want: "61-90"},
		{days: 90, balance: 50000, want: "61-90"},
		{days: 91, balance: 50000, want: "90+"},
		{days: 400, balance: 1, want: "90+"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.days, tc.balance, buckets), "days=%d balance=%d", tc.days, tc.balance)
	}
}

func TestCategorizeFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, "31-60", Categorize(31, 50000, nil))
}

func TestCategorizeCustomBuckets(t *testing.T) {
	fourteen := 14
	buckets := []config.AgingBucket{
		{Label: "on-time", MinDays: 0, MaxDays: new(int)},
		{Label: "grace", MinDays: 1, MaxDays: &fourteen},
		{Label: "late", MinDays: 15},
	}
	assert.Equal(t, "on-time", Categorize(0, 100, buckets))
	assert.Equal(t, "grace", Categorize(14, 100, buckets))
	assert.Equal(t, "late", Categorize(15, 100, buckets))
}

func TestDaysOverdue(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 31, DaysOverdue(now, now.AddDate(0, 0, -31)))
	assert.Equal(t, 0, DaysOverdue(now, now.Add(-23*time.Hour)))
	assert.Equal(t, 0, DaysOverdue(now, now.AddDate(0, 0, 5)))
	assert.Equal(t, 1, DaysOverdue(now, now.Add(-25*time.Hour)))
}
