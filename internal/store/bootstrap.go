package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tours-backend/internal/metadata"
)

// Bootstrap creates the auth tables, migrates every collection and seeds
// the default admin user and booking attribute catalog.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	migrator := NewMigrator(s)
	for _, e := range metadata.Collections() {
		if err := migrator.Migrate(ctx, e); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Name, err)
		}
	}

	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	if err := s.seedAttributes(ctx); err != nil {
		return fmt.Errorf("seed booking attributes: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf(`INSERT INTO _users (id, email, password_hash, role, active, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(GenerateUUID()), pb.Add("admin@localhost"), pb.Add(string(hashBytes)), pb.Add(metadata.RoleAdmin),
		pb.Add(true), pb.Add(s.Dialect.TimeParam(time.Now())), pb.Add(s.Dialect.TimeParam(time.Now())))
	if _, err := s.DB.ExecContext(ctx, sql, pb.Params()...); err != nil {
		return err
	}

	log.Println("WARNING: Default admin user created (admin@localhost / changeme). Change the password immediately.")
	return nil
}

func (s *Store) seedAttributes(ctx context.Context) error {
	entity := metadata.BookingAttributesEntity()
	n, err := s.Count(ctx, s.DB, entity, nil)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, a := range metadata.DefaultBookingAttributes() {
		if _, err := s.Insert(ctx, s.DB, entity, a.ToRecord()); err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				continue
			}
			return fmt.Errorf("insert attribute %s: %w", a.Name, err)
		}
	}
	return nil
}
