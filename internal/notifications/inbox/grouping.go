// internal/notifications/inbox/grouping.go
package inbox

import (
	"fmt"
	"sort"
	"time"

	"league-notifications/internal/models"
)

// SimilarWindow bounds how far apart two same-titled notifications may be to share a group.
const SimilarWindow = time.Hour

// DefaultGroupThreshold is the list size above which grouping kicks in.
const DefaultGroupThreshold = 10

type Group struct {
	Category        models.Category       `json:"category"`
	Notifications   []models.Notification `json:"notifications"`
	Count           int                   `json:"count"`
	LatestTimestamp time.Time             `json:"latest_timestamp"`
	Expanded        bool                  `json:"expanded"`
}

var categoryNames = map[models.Category]string{
	models.CategoryMatch:        "Match Results",
	models.CategoryLeague:       "League Updates",
	models.CategorySocial:       "Social Notifications",
	models.CategoryAchievement:  "Achievements",
	models.CategoryAnnouncement: "Announcements",
	models.CategoryAlert:        "Alerts",
	models.CategorySystem:       "System Notifications",
}

// GroupByCategory buckets notifications by category, newest bucket first.
// Input is expected newest first; bucket order follows the first member.
func GroupByCategory(notifications []models.Notification) []Group {
	index := make(map[models.Category]int)
	var groups []Group

	for _, n := range notifications {
		c := n.Category
		if c == "" {
			c = models.CategorySystem
		}
		i, ok := index[c]
		if !ok {
			i = len(groups)
			index[c] = i
			groups = append(groups, Group{Category: c, LatestTimestamp: n.CreatedAt})
		}
		groups[i].Notifications = append(groups[i].Notifications, n)
		groups[i].Count++
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].LatestTimestamp.After(groups[b].LatestTimestamp)
	})
	return groups
}

// GroupSimilar merges notifications sharing a title within SimilarWindow of the
// first one seen. Singletons come back as expanded one-item groups.
func GroupSimilar(notifications []models.Notification) []Group {
	processed := make(map[string]bool, len(notifications))
	var groups []Group

	for _, n := range notifications {
		if processed[n.ID] {
			continue
		}

		var similar []models.Notification
		for _, other := range notifications {
			if processed[other.ID] || other.Title != n.Title {
				continue
			}
			if absDuration(other.CreatedAt.Sub(n.CreatedAt)) < SimilarWindow {
				similar = append(similar, other)
			}
		}
		for _, s := range similar {
			processed[s.ID] = true
		}

		groups = append(groups, Group{
			Category:        n.Category,
			Notifications:   similar,
			Count:           len(similar),
			LatestTimestamp: similar[0].CreatedAt,
			Expanded:        len(similar) == 1,
		})
	}
	return groups
}

// ShouldGroup is true above threshold items or when under 70% of titles are unique.
func ShouldGroup(notifications []models.Notification, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultGroupThreshold
	}
	if len(notifications) > threshold {
		return true
	}

	titles := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		titles[n.Title] = struct{}{}
	}
	return float64(len(titles)) < float64(len(notifications))*0.7
}

func GroupTitle(g Group) string {
	if g.Count == 1 && len(g.Notifications) == 1 {
		return g.Notifications[0].Title
	}
	name, ok := categoryNames[g.Category]
	if !ok {
		name = "Notifications"
	}
	return fmt.Sprintf("%d %s", g.Count, name)
}

func GroupSummary(g Group) string {
	if g.Count == 1 && len(g.Notifications) == 1 {
		return g.Notifications[0].Message
	}

	unread := 0
	for _, n := range g.Notifications {
		if !n.Read {
			unread++
		}
	}
	switch {
	case unread == 1:
		return "1 unread notification"
	case unread > 1:
		return fmt.Sprintf("%d unread notifications", unread)
	default:
		return "All notifications read"
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
