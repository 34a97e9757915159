package session

import (
	"sort"
	"strings"
	"time"

	"ai-chat-be/internal/entity"
)

type GroupingMode string

const (
	GroupingRelative GroupingMode = "relative"
	GroupingMonthly  GroupingMode = "monthly"
)

const (
	LabelToday      = "Today"
	LabelYesterday  = "Yesterday"
	LabelPast7Days  = "Past 7 days"
	LabelPast30Days = "Past 30 days"
	LabelOlder      = "Older"

	// UntitledLabel is shown, and searched, for sessions with an empty title.
	UntitledLabel = "Untitled chat"
)

type Group struct {
	Label    string                `json:"label"`
	Sessions []*entity.ChatSession `json:"sessions"`
}

// DisplayTitle is the title used for display and search.
func DisplayTitle(s *entity.ChatSession) string {
	if strings.TrimSpace(s.Title) == "" {
		return UntitledLabel
	}
	return s.Title
}

// GroupSessions filters sessions by query and buckets them by age relative to now.
// Bucket boundaries are local midnights in now's location and inclusive at the lower
// bound. Empty buckets are omitted.
func GroupSessions(sessions []*entity.ChatSession, now time.Time, query string, mode GroupingMode) []Group {
	q := strings.ToLower(strings.TrimSpace(query))

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	week := today.AddDate(0, 0, -7)
	month := today.AddDate(0, 0, -30)

	fixed := []string{LabelToday, LabelYesterday, LabelPast7Days, LabelPast30Days}
	buckets := make(map[string][]*entity.ChatSession)
	var monthKeys []time.Time

	for _, s := range sessions {
		if q != "" && !strings.Contains(strings.ToLower(DisplayTitle(s)), q) {
			continue
		}
		created := s.CreatedAt.In(now.Location())
		var label string
		switch {
		case !created.Before(today):
			label = LabelToday
		case !created.Before(yesterday):
			label = LabelYesterday
		case !created.Before(week):
			label = LabelPast7Days
		case !created.Before(month):
			label = LabelPast30Days
		case mode == GroupingMonthly:
			key := time.Date(created.Year(), created.Month(), 1, 0, 0, 0, 0, now.Location())
			label = key.Format("January 2006")
			if _, seen := buckets[label]; !seen {
				monthKeys = append(monthKeys, key)
			}
		default:
			label = LabelOlder
		}
		buckets[label] = append(buckets[label], s)
	}

	sort.Slice(monthKeys, func(i, j int) bool { return monthKeys[i].After(monthKeys[j]) })

	order := append([]string{}, fixed...)
	for _, k := range monthKeys {
		order = append(order, k.Format("January 2006"))
	}
	order = append(order, LabelOlder)

	var groups []Group
	for _, label := range order {
		items := buckets[label]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
		groups = append(groups, Group{Label: label, Sessions: items})
	}
	return groups
}
