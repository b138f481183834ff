package analytics

import (
	"errors"
	"time"
)

// Bucket is a reporting time window used to total session durations.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

var ErrUnknownBucket = errors.New("unknown bucket")

// ParseBucket validates a bucket name from the API.
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(s) {
	case BucketDay, BucketWeek, BucketMonth:
		return Bucket(s), nil
	default:
		return "", ErrUnknownBucket
	}
}

// BucketStart returns the calendar-aligned start of the bucket containing
// now, in UTC: day starts at midnight, week on Monday 00:00, month on the
// 1st. A session counts toward every bucket whose start it is at or after,
// so the three windows overlap rather than partition.
func BucketStart(bucket Bucket, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch bucket {
	case BucketDay:
		return midnight
	case BucketWeek:
		// time.Weekday numbers Sunday as 0; shift so weeks start Monday.
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return midnight
	}
}
