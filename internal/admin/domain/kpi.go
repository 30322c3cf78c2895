package domain

import (
	"sort"
	"time"
)

// Ranges accepted by the KPI endpoints.
const (
	RangeLast30Days   = "last30d"
	RangeLast12Weeks  = "last12w"
	RangeLast12Months = "last12m"
)

// Granularities accepted by the bucketed KPI endpoints. They are also date_trunc units.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
	GranularityYear  = "year"
)

// Window returns [now-range, now]. Unknown ranges fall back to the last 30 days.
func Window(rangeVal string, now time.Time) (from, to time.Time) {
	now = now.UTC()
	switch rangeVal {
	case RangeLast12Weeks:
		return now.AddDate(0, 0, -12*7), now
	case RangeLast12Months:
		return now.AddDate(0, 0, -365), now
	default:
		return now.AddDate(0, 0, -30), now
	}
}

// Granularity returns g when it is supported and GranularityDay otherwise.
func Granularity(g string) string {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return g
	}
	return GranularityDay
}

// Query selects the rows a KPI aggregates. An empty UserID means the whole tenant.
type Query struct {
	From   time.Time
	To     time.Time
	UserID string
}

// Summary totals usage and chat creation in a window.
type Summary struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	TotalTokens       int `json:"total_tokens"`
	RequestCount      int `json:"request_count"`
	ChatsCreatedCount int `json:"chats_created_count"`
}

// TokenBucket is token usage in one time bucket.
type TokenBucket struct {
	BucketStart  time.Time `json:"bucket_start"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
}

// ChatsBucket is the number of chats created in one time bucket.
type ChatsBucket struct {
	BucketStart  time.Time `json:"bucket_start"`
	ChatsCreated int       `json:"chats_created"`
}

// AssistModeUsage groups requests by assist mode.
type AssistModeUsage struct {
	AssistMode   *string `json:"assist_mode"`
	RequestCount int     `json:"request_count"`
	TotalTokens  int     `json:"total_tokens"`
}

// ModelUsage groups requests by model.
type ModelUsage struct {
	ModelName    string  `json:"model_name"`
	ModelVersion *string `json:"model_version"`
	RequestCount int     `json:"request_count"`
	TotalTokens  int     `json:"total_tokens"`
}

// Activity summarizes on which days the caller used the assistant.
type Activity struct {
	ActiveDaysCount     int     `json:"active_days_count"`
	CurrentStreakDays   int     `json:"current_streak_days"`
	AvgTokensPerRequest float64 `json:"avg_tokens_per_request"`
}

// CurrentStreak returns the length of the most recent run of consecutive days.
// days may be unsorted and hold duplicates; only their UTC date matters.
func CurrentStreak(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	uniq := map[time.Time]struct{}{}
	for _, d := range days {
		y, m, dd := d.UTC().Date()
		uniq[time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	sorted := make([]time.Time, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })
	streak := 1
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].AddDate(0, 0, -1).Equal(sorted[i]) {
			break
		}
		streak++
	}
	return streak
}
