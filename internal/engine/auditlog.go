package engine

import (
	"context"
	"log"

	"github.com/sourcegraph/conc/panics"

	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

// AuditEntry is one webhook_logs row. Empty strings are stored as NULL.
type AuditEntry struct {
	WebhookConfigID string
	EventType       string
	Payload         string
	ResponseStatus  int
	ResponseBody    string
	ErrorMessage    string
}

// AuditLogger appends delivery and ingestion attempts to webhook_logs.
type AuditLogger struct {
	store  *store.Store
	entity *metadata.Entity
}

func NewAuditLogger(s *store.Store) *AuditLogger {
	return &AuditLogger{store: s, entity: metadata.WebhookLogsEntity()}
}

// Record writes entry and returns the new log id, or "" if the write failed.
// Errors and panics are logged and never reach the caller.
func (a *AuditLogger) Record(ctx context.Context, entry AuditEntry) string {
	var id string
	var pc panics.Catcher
	pc.Try(func() {
		row, err := a.store.Insert(ctx, a.store.DB, a.entity, map[string]any{
			"webhook_config_id": nullIfEmpty(entry.WebhookConfigID),
			"event_type":        entry.EventType,
			"payload":           entry.Payload,
			"response_status":   entry.ResponseStatus,
			"response_body":     nullIfEmpty(entry.ResponseBody),
			"error_message":     nullIfEmpty(entry.ErrorMessage),
		})
		if err != nil {
			log.Printf("ERROR: write webhook log (%s, config %q): %v", entry.EventType, entry.WebhookConfigID, err)
			return
		}
		id, _ = row["id"].(string)
	})
	if r := pc.Recovered(); r != nil {
		log.Printf("ERROR: write webhook log (%s) panicked: %v", entry.EventType, r.Value)
		return ""
	}
	return id
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
