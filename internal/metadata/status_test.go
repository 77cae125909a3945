package metadata

import "testing"

func TestClassifyStatus(t *testing.T) {
	cases := map[string]StatusCategory{
		"confirmed":         StatusConfirmed,
		"Accepted":          StatusConfirmed,
		"approved by guide": StatusConfirmed,
		"pending":           StatusPending,
		"waiting_payment":   StatusPending,
		"in review":         StatusPending,
		"completed":         StatusCompleted,
		"FINISHED":          StatusCompleted,
		"done":              StatusCompleted,
		"cancelled":         StatusCancelled,
		"canceled":          StatusCancelled,
		"rejected":          StatusCancelled,
		"declined":          StatusCancelled,
		"draft":             StatusDraft,
		"new":               StatusDraft,
		"in progress":       StatusInProgress,
		"active":            StatusInProgress,
		"":                  StatusUnknown,
		"something-else":    StatusUnknown,
		"  confirmed  ":     StatusConfirmed,
	}
	for in, want := range cases {
		if got := ClassifyStatus(in); got != want {
			t.Errorf("ClassifyStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
