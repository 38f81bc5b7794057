package domain

import (
	"time"

	"github.com/smallbiznis/bursar/internal/config"
)

const CategoryCurrent = "current"

// DaysOverdue counts whole days elapsed since due. It is never negative.
func DaysOverdue(now, due time.Time) int {
	days := int(now.UTC().Sub(due.UTC()).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Categorize returns the label of the bucket holding daysOverdue. A settled
// balance or a balance not yet due is always current.
func Categorize(daysOverdue int, balance int64, buckets []config.AgingBucket) string {
	if len(buckets) == 0 {
		buckets = config.DefaultBillingConfig().AgingBuckets
	}
	if balance <= 0 || daysOverdue <= 0 {
		if buckets[0].Contains(0) {
			return buckets[0].Label
		}
		return CategoryCurrent
	}
	for _, bucket := range buckets {
		if bucket.Contains(daysOverdue) {
			return bucket.Label
		}
	}
	return buckets[len(buckets)-1].Label
}
