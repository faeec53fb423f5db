package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse summarizes the synced inbox.
type StatsResponse struct {
	Conversations int    `json:"conversations"`
	Unread        int    `json:"unread"`
	UnreadThreads int    `json:"unread_threads"`
	LastActivity  string `json:"last_activity"`
	LastSynced    string `json:"last_synced"`
}

// Stats returns inbox counters computed from the engine cache.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.inbox.Snapshot()
	now := time.Now()

	resp := StatsResponse{
		Conversations: len(snap.Conversations),
		LastActivity:  "no activity yet",
		LastSynced:    "never",
	}

	var latest time.Time
	for _, c := range snap.Conversations {
		resp.Unread += c.UnreadCount
		if c.UnreadCount > 0 {
			resp.UnreadThreads++
		}
		if c.LastMessageAt.After(latest) {
			latest = c.LastMessageAt
		}
	}
	if !latest.IsZero() {
		resp.LastActivity = formatTimeAgo(now, latest)
	}
	if !snap.LastSyncedAt.IsZero() {
		resp.LastSynced = formatTimeAgo(now, snap.LastSyncedAt)
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats t as a human-readable "X ago" string relative to now.
func formatTimeAgo(now, t time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
