package metadata

import "strings"

// StatusCategory is the semantic family of a free-form booking status.
type StatusCategory string

const (
	StatusConfirmed  StatusCategory = "confirmed"
	StatusPending    StatusCategory = "pending"
	StatusCompleted  StatusCategory = "completed"
	StatusCancelled  StatusCategory = "cancelled"
	StatusDraft      StatusCategory = "draft"
	StatusInProgress StatusCategory = "in_progress"
	StatusUnknown    StatusCategory = "unknown"
)

// StatusCategories lists every category in display order.
var StatusCategories = []StatusCategory{
	StatusConfirmed, StatusPending, StatusCompleted, StatusCancelled, StatusDraft, StatusInProgress, StatusUnknown,
}

var statusFamilies = []struct {
	category StatusCategory
	needles  []string
}{
	{StatusConfirmed, []string{"confirm", "accept", "approv"}},
	{StatusPending, []string{"pending", "wait", "review"}},
	{StatusCompleted, []string{"complet", "finish", "done"}},
	{StatusCancelled, []string{"cancel", "reject", "decline"}},
	{StatusDraft, []string{"draft", "new"}},
	{StatusInProgress, []string{"progress", "active"}},
}

// ClassifyStatus maps a status string to its category by case-insensitive
// substring match. Families are checked in order; the first hit wins.
func ClassifyStatus(status string) StatusCategory {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return StatusUnknown
	}
	for _, fam := range statusFamilies {
		for _, n := range fam.needles {
			if strings.Contains(s, n) {
				return fam.category
			}
		}
	}
	return StatusUnknown
}
