package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Summary is the per-user, per-bucket aggregate served to reports.
type Summary struct {
	TotalDurationSeconds int64 `json:"total_duration_seconds"`
	SessionCount         int   `json:"session_count"`
}

// Entry is one row of the duration leaderboard.
type Entry struct {
	UserID               uuid.UUID `json:"user_id"`
	TotalDurationSeconds int64     `json:"total_duration_seconds"`
	SessionCount         int       `json:"session_count"`
}

// OnlineChecker reports whether a user currently resolves online. Satisfied
// by the presence resolver.
type OnlineChecker interface {
	OnlineSet() map[uuid.UUID]struct{}
}

// DefaultLeaderboardSize matches the portal's "top three" widget.
const DefaultLeaderboardSize = 3

// Service combines closed-session totals with live estimates for still-open
// sessions to produce per-user, per-bucket totals and rankings.
type Service interface {
	// Aggregate totals sessions in the bucket, for one user when userID is
	// set or across all users otherwise.
	Aggregate(ctx context.Context, userID *uuid.UUID, bucket Bucket) (Summary, error)

	// TopNByDuration ranks per-user totals descending, dropping users with
	// a zero total. Ties keep their input order. n <= 0 falls back to the
	// configured leaderboard size.
	TopNByDuration(ctx context.Context, bucket Bucket, n int) ([]Entry, error)
}

type aggregator struct {
	sessions        session.Service
	online          OnlineChecker
	logger          *logrus.Logger
	retention       time.Duration
	leaderboardSize int
	now             func() time.Time
}

func NewService(sessions session.Service, online OnlineChecker, retention time.Duration, leaderboardSize int, logger *logrus.Logger) Service {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if leaderboardSize <= 0 {
		leaderboardSize = DefaultLeaderboardSize
	}
	return &aggregator{
		sessions:        sessions,
		online:          online,
		logger:          logger,
		retention:       retention,
		leaderboardSize: leaderboardSize,
		now:             time.Now,
	}
}

func (a *aggregator) Aggregate(ctx context.Context, userID *uuid.UUID, bucket Bucket) (Summary, error) {
	totals, err := a.collect(ctx, userID, bucket)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, t := range totals {
		summary.TotalDurationSeconds += t.TotalDurationSeconds
		summary.SessionCount += t.SessionCount
	}
	return summary, nil
}

func (a *aggregator) TopNByDuration(ctx context.Context, bucket Bucket, n int) ([]Entry, error) {
	if n <= 0 {
		n = a.leaderboardSize
	}

	totals, err := a.collect(ctx, nil, bucket)
	if err != nil {
		return nil, err
	}

	ranked := rank(totals, n)

	a.logger.WithFields(logrus.Fields{
		"bucket":  bucket,
		"limit":   n,
		"entries": len(ranked),
	}).Debug("computed duration leaderboard")

	return ranked, nil
}

// collect queries the retention window and folds each session into the
// per-user totals for the bucket. Returned entries keep the stable order in
// which users first appear in the (start_at ordered) session list, which is
// what makes the ranking tie-break deterministic.
func (a *aggregator) collect(ctx context.Context, userID *uuid.UUID, bucket Bucket) ([]Entry, error) {
	now := a.now().UTC()

	sessions, err := a.sessions.ListSessionsSince(ctx, session.SessionFilter{
		UserID:     userID,
		StartAfter: now.Add(-a.retention),
	})
	if err != nil {
		return nil, err
	}

	online := a.online.OnlineSet()
	return fold(sessions, online, BucketStart(bucket, now), now), nil
}

// fold applies the contribution rules: closed sessions contribute their
// stored duration; open sessions contribute the live estimate now-start_at
// while the owner resolves online, or the last persisted duration (frozen)
// once they do not, since the row's field may lag the in-memory tick only
// while the user is confirmed live.
func fold(sessions []session.Session, online map[uuid.UUID]struct{}, bucketStart, now time.Time) []Entry {
	index := make(map[uuid.UUID]int)
	var totals []Entry

	for _, s := range sessions {
		if s.StartAt.Before(bucketStart) {
			continue
		}

		var contribution int64
		switch {
		case !s.Open():
			contribution = s.DurationSeconds
		default:
			if _, ok := online[s.UserID]; ok {
				contribution = int64(now.Sub(s.StartAt).Seconds())
				if contribution < 0 {
					contribution = 0
				}
			} else {
				contribution = s.DurationSeconds
			}
		}

		i, ok := index[s.UserID]
		if !ok {
			i = len(totals)
			index[s.UserID] = i
			totals = append(totals, Entry{UserID: s.UserID})
		}
		totals[i].TotalDurationSeconds += contribution
		totals[i].SessionCount++
	}

	return totals
}

// rank sorts totals descending, drops zero totals and truncates to n.
// sort.SliceStable keeps equal totals in input order.
func rank(totals []Entry, n int) []Entry {
	ranked := make([]Entry, 0, len(totals))
	for _, t := range totals {
		if t.TotalDurationSeconds > 0 {
			ranked = append(ranked, t)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalDurationSeconds > ranked[j].TotalDurationSeconds
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
