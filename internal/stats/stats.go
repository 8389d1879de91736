// Package stats aggregates sealed sessions into the totals and breakdowns
// served by the stats tool. Everything here is a pure read over the seal
// list; nothing mutates state.
package stats

import (
	"sort"
	"time"

	"useaid/internal/store"
)

// Stats is the aggregate view over all sealed sessions.
type Stats struct {
	TotalSessions   int   `json:"total_sessions"`
	TotalSeconds    int64 `json:"total_seconds"`
	TotalActive     int64 `json:"total_active_seconds"`
	TotalMilestones int   `json:"total_milestones"`
	StreakDays      int   `json:"streak_days"`

	ByClient   []Bucket `json:"by_client"`
	ByLanguage []Bucket `json:"by_language"`
	ByTaskType []Bucket `json:"by_task_type"`
}

// Bucket is one row of a breakdown, ordered by descending time spent.
type Bucket struct {
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
	Seconds  int64  `json:"seconds"`
}

// Compute aggregates the seal list. now anchors the streak calculation and
// is interpreted in its own location (the caller passes local time).
func Compute(seals []store.Seal, now time.Time) Stats {
	s := Stats{}
	clients := map[string]*Bucket{}
	languages := map[string]*Bucket{}
	taskTypes := map[string]*Bucket{}

	for _, seal := range seals {
		s.TotalSessions++
		s.TotalSeconds += seal.DurationSeconds
		s.TotalActive += seal.ActiveSeconds
		s.TotalMilestones += seal.MilestoneCount

		bump(clients, seal.Client, seal.DurationSeconds)
		bump(languages, primaryLanguage(seal), seal.DurationSeconds)
		bump(taskTypes, seal.TaskType, seal.DurationSeconds)
	}

	s.ByClient = sorted(clients)
	s.ByLanguage = sorted(languages)
	s.ByTaskType = sorted(taskTypes)
	s.StreakDays = Streak(seals, now)
	return s
}

// Streak counts consecutive calendar days with at least one session start,
// walking backward from now's day and stopping at the first empty day.
// Days are resolved in now's location.
func Streak(seals []store.Seal, now time.Time) int {
	loc := now.Location()
	days := make(map[string]bool, len(seals))
	for _, seal := range seals {
		days[seal.StartedAt.In(loc).Format("2006-01-02")] = true
	}

	streak := 0
	day := now
	for days[day.In(loc).Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// primaryLanguage is the first language tagged on the seal.
func primaryLanguage(seal store.Seal) string {
	if len(seal.Languages) == 0 {
		return ""
	}
	return seal.Languages[0]
}

func bump(m map[string]*Bucket, name string, seconds int64) {
	if name == "" {
		return
	}
	b, ok := m[name]
	if !ok {
		b = &Bucket{Name: name}
		m[name] = b
	}
	b.Sessions++
	b.Seconds += seconds
}

func sorted(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Name < out[j].Name
	})
	return out
}
