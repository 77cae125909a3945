package engine

import (
	"context"
	"testing"

	"tours-backend/internal/config"
	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "engine"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func insertBooking(t *testing.T, s *store.Store, overrides map[string]any) map[string]any {
	t.Helper()
	rec := map[string]any{
		"customer_name":  "Ana Lima",
		"customer_email": "ana@example.com",
		"tour_name":      "Sunset Kayak",
		"tour_date":      "2030-06-01",
		"participants":   int64(2),
		"total_price":    120.0,
		"status":         "confirmed",
	}
	for k, v := range overrides {
		rec[k] = v
	}
	row, err := s.Insert(context.Background(), s.DB, metadata.BookingsEntity(), rec)
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return row
}

func insertWebhookConfig(t *testing.T, s *store.Store, rec map[string]any) map[string]any {
	t.Helper()
	row, err := s.Insert(context.Background(), s.DB, metadata.WebhookConfigsEntity(), rec)
	if err != nil {
		t.Fatalf("insert webhook config: %v", err)
	}
	return row
}

func webhookLogs(t *testing.T, s *store.Store) []map[string]any {
	t.Helper()
	rows, err := s.Find(context.Background(), s.DB, metadata.WebhookLogsEntity(), store.Query{
		Sort: []store.SortField{{Field: "created_at"}, {Field: "id"}},
	})
	if err != nil {
		t.Fatalf("list webhook logs: %v", err)
	}
	return rows
}
