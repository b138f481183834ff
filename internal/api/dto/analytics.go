package dto

// AggregateResponse is the per-bucket duration summary.
type AggregateResponse struct {
	Bucket               string `json:"bucket"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
	SessionCount         int    `json:"session_count"`
}

// LeaderboardEntry is one ranked row of the duration leaderboard.
type LeaderboardEntry struct {
	UserID               string `json:"user_id"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
	SessionCount         int    `json:"session_count"`
}

// LeaderboardResponse is the ranked duration leaderboard for a bucket.
type LeaderboardResponse struct {
	Bucket  string             `json:"bucket"`
	Entries []LeaderboardEntry `json:"entries"`
}
