package cache

import (
	"fmt"
	"time"
)

// RateLimitKey holds the sliding-window log of one identity.
func RateLimitKey(identityID string) string {
	return fmt.Sprintf("ratelimit:%s", identityID)
}

// QueueKey holds the waiting entries of one priority class.
func QueueKey(priority string) string {
	return fmt.Sprintf("queue:%s", priority)
}

// DailyUsageKey counts generations of one identity on the UTC day of t.
func DailyUsageKey(identityID string, t time.Time) string {
	return fmt.Sprintf("usage:daily:%s:%s", identityID, t.UTC().Format("2006-01-02"))
}

// MonthlyUsageKey counts generations of one identity in the UTC month of t.
func MonthlyUsageKey(identityID string, t time.Time) string {
	return fmt.Sprintf("usage:monthly:%s:%s", identityID, t.UTC().Format("2006-01"))
}

// ArchivedJobKey caches an archived job fetched from the database.
func ArchivedJobKey(jobID string) string {
	return fmt.Sprintf("job:archived:%s", jobID)
}
