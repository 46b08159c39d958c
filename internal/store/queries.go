package store

import (
	"strings"
	"time"

	"chatline/internal/models"

	"golang.org/x/text/cases"
)

const (
	labelToday     = "Today"
	labelYesterday = "Yesterday"
	dateLayout     = "Jan 2, 2006"
)

// DateGroup is a run of consecutive messages sharing a date label
type DateGroup struct {
	Label    string
	Messages []models.Message
}

// Search returns messages whose content contains text, ignoring case.
// An empty query matches everything.
func (s *Store) Search(text string) []models.Message {
	if strings.TrimSpace(text) == "" {
		return s.Snapshot()
	}
	folder := cases.Fold()
	needle := folder.String(text)
	return s.filter(func(m *models.Message) bool {
		return strings.Contains(folder.String(m.Content), needle)
	})
}

// Starred returns starred messages in insertion order
func (s *Store) Starred() []models.Message {
	return s.filter(func(m *models.Message) bool { return m.Starred })
}

// DateKey labels t relative to now: Today, Yesterday or a calendar date in now's location
func DateKey(t, now time.Time) string {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()

	if ty == ny && tm == nm && td == nd {
		return labelToday
	}
	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if ty == yy && tm == ym && td == yd {
		return labelYesterday
	}
	return t.Format(dateLayout)
}

// GroupByDate splits the log into runs of equal DateKey, in insertion order
func (s *Store) GroupByDate(now time.Time) []DateGroup {
	var groups []DateGroup
	for _, m := range s.Snapshot() {
		label := DateKey(m.CreatedAt, now)
		if n := len(groups); n > 0 && groups[n-1].Label == label {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{Label: label, Messages: []models.Message{m}})
	}
	return groups
}
