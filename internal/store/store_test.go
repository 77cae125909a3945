package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tours-backend/internal/config"
	"tours-backend/internal/metadata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func sampleBooking(externalID string) map[string]any {
	return map[string]any{
		"external_booking_id": externalID,
		"customer_name":       "Ana Silva",
		"customer_email":      "ana@example.com",
		"tour_name":           "Kayak Sunset",
		"tour_date":           "2024-07-01",
		"participants":        float64(2),
		"total_price":         120.5,
		"status":              "confirmed",
		"attributes":          map[string]any{"city": "Porto"},
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := metadata.BookingsEntity()

	rec, err := s.Insert(ctx, s.DB, e, sampleBooking("ext-1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, _ := rec["id"].(string)
	if !strings.HasPrefix(id, "booking_") {
		t.Fatalf("expected booking_ id, got %q", id)
	}
	if rec["currency"] != "EUR" || rec["tour_time"] != "09:00" {
		t.Fatalf("column defaults not applied: %v %v", rec["currency"], rec["tour_time"])
	}
	if rec["total_price"] != 120.5 {
		t.Fatalf("unexpected total_price %#v", rec["total_price"])
	}
	attrs, ok := rec["attributes"].(map[string]any)
	if !ok || attrs["city"] != "Porto" {
		t.Fatalf("attributes not decoded: %#v", rec["attributes"])
	}
	if _, ok := rec["created_at"].(time.Time); !ok {
		t.Fatalf("created_at not parsed: %#v", rec["created_at"])
	}

	updated, err := s.Update(ctx, s.DB, e, id, map[string]any{"status": "completed", "id": "ignored"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["status"] != "completed" || updated["id"] != id {
		t.Fatalf("unexpected update result: %v", updated)
	}

	if err := s.Delete(ctx, s.DB, e, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, s.DB, e, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, s.DB, e, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestInsert_DuplicateExternalIDIsUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := metadata.BookingsEntity()

	if _, err := s.Insert(ctx, s.DB, e, sampleBooking("ext-dup")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := s.Insert(ctx, s.DB, e, sampleBooking("ext-dup"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}

	// NULL external ids never collide
	a := sampleBooking("")
	a["external_booking_id"] = nil
	b := sampleBooking("")
	b["external_booking_id"] = nil
	if _, err := s.Insert(ctx, s.DB, e, a); err != nil {
		t.Fatalf("insert null external id: %v", err)
	}
	if _, err := s.Insert(ctx, s.DB, e, b); err != nil {
		t.Fatalf("insert second null external id: %v", err)
	}
}

func TestFind_FiltersSortAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := metadata.WebhookConfigsEntity()

	for _, c := range []map[string]any{
		{"name": "b", "url": "https://b.example", "event_type": "booking_completed", "is_active": true},
		{"name": "a", "url": "https://a.example", "event_type": "booking_completed", "is_active": true},
		{"name": "c", "url": "https://c.example", "event_type": "booking_completed", "is_active": false},
		{"name": "d", "url": "https://d.example", "event_type": "asset_assigned", "is_active": true},
	} {
		if _, err := s.Insert(ctx, s.DB, e, c); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := s.Find(ctx, s.DB, e, Query{
		Filters: []Filter{Eq("event_type", "booking_completed"), Eq("is_active", true)},
		Sort:    []SortField{{Field: "name"}},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 2 || rows[0]["name"] != "a" || rows[1]["name"] != "b" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[0]["is_active"] != true {
		t.Fatalf("expected boolean is_active, got %#v", rows[0]["is_active"])
	}

	rows, err = s.Find(ctx, s.DB, e, Query{Sort: []SortField{{Field: "name", Desc: true}}, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("find page: %v", err)
	}
	if len(rows) != 2 || rows[0]["name"] != "c" || rows[1]["name"] != "b" {
		t.Fatalf("unexpected page: %v", rows)
	}

	rows, err = s.Find(ctx, s.DB, e, Query{Filters: []Filter{{Field: "name", Op: OpIn, Value: []any{"a", "d"}}}})
	if err != nil {
		t.Fatalf("find in: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for in filter, got %d", len(rows))
	}

	n, err := s.Count(ctx, s.DB, e, []Filter{{Field: "url", Op: OpLike, Value: "EXAMPLE"}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}

	if _, err := s.Find(ctx, s.DB, e, Query{Filters: []Filter{Eq("nope", 1)}}); err == nil {
		t.Fatal("expected error for unknown filter field")
	}
}

func TestBootstrap_IsIdempotentAndSeeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	admin, err := QueryRow(ctx, s.DB, "SELECT email, role FROM _users")
	if err != nil {
		t.Fatalf("query admin: %v", err)
	}
	if admin["email"] != "admin@localhost" || admin["role"] != metadata.RoleAdmin {
		t.Fatalf("unexpected admin row: %v", admin)
	}

	n, err := s.Count(ctx, s.DB, metadata.BookingAttributesEntity(), nil)
	if err != nil {
		t.Fatalf("count attributes: %v", err)
	}
	if int(n) != len(metadata.DefaultBookingAttributes()) {
		t.Fatalf("expected %d seeded attributes, got %d", len(metadata.DefaultBookingAttributes()), n)
	}

	reg := metadata.NewRegistry()
	if err := metadata.LoadAttributes(ctx, s.DB, reg); err != nil {
		t.Fatalf("load attributes: %v", err)
	}
	pt := reg.GetAttribute("payment_type")
	if pt == nil || len(pt.Options) != 5 || pt.DefaultValue == nil || *pt.DefaultValue != "Credit Card" {
		t.Fatalf("unexpected payment_type attribute: %+v", pt)
	}
}

func TestMigrate_AddsMissingColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := metadata.AssetsEntity()
	e.Fields = append(e.Fields, metadata.Field{Name: "serial_number", Type: "string", Default: ""})
	if err := NewMigrator(s).Migrate(ctx, e); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cols, err := s.Dialect.GetColumns(ctx, s.DB, "assets")
	if err != nil {
		t.Fatalf("get columns: %v", err)
	}
	if _, ok := cols["serial_number"]; !ok {
		t.Fatalf("serial_number not added: %v", cols)
	}
}

func TestPostgresMapError(t *testing.T) {
	d := &PostgresDialect{}

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := d.MapError(pgErr)
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	var unwrapped *pgconn.PgError
	if !errors.As(err, &unwrapped) || unwrapped.Code != "23505" {
		t.Fatal("driver error should stay extractable")
	}

	other := &pgconn.PgError{Code: "23503"}
	if errors.Is(d.MapError(other), ErrUniqueViolation) {
		t.Fatal("foreign key violation must not map to unique violation")
	}
	if d.MapError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestSQLiteMapError(t *testing.T) {
	d := &SQLiteDialect{}
	err := d.MapError(errors.New("constraint failed: UNIQUE constraint failed: bookings.external_booking_id (2067)"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if errors.Is(d.MapError(errors.New("disk I/O error")), ErrUniqueViolation) {
		t.Fatal("unexpected mapping")
	}
}

func TestInsert_DriverErrorIsMapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := NewWithDB(db, &PostgresDialect{})

	mock.ExpectExec("INSERT INTO webhook_logs").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = s.Insert(context.Background(), s.DB, metadata.WebhookLogsEntity(), map[string]any{
		"event_type": "booking_completed",
		"payload":    "{}",
	})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID("whlog"), NewID("whlog")
	if !strings.HasPrefix(a, "whlog_") || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if len(GenerateUUID()) != 36 {
		t.Fatal("expected canonical uuid")
	}
}
