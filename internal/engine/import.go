package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
	"tours-backend/internal/storage"
	"tours-backend/internal/store"
)

var (
	csvRequiredColumns = []string{"customer_name", "tour_type", "booking_date", "email"}

	csvEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	csvDatePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ImportRowError describes one rejected CSV row. Row 1 is the first data row.
type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type ImportReport struct {
	File     string           `json:"file"`
	Imported int              `json:"imported"`
	Failed   int              `json:"failed"`
	Errors   []ImportRowError `json:"errors"`
}

// ImportBookings handles POST /api/bookings/import
func (h *Handler) ImportBookings(c *fiber.Ctx) error {
	user := getUser(c)
	if err := CheckPermission(user, metadata.CollectionBookings, ActionCreate); err != nil {
		return err
	}
	if h.files == nil {
		return NewAppError("NOT_CONFIGURED", 501, "File storage is not configured")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, MissingFieldsError([]string{"file"}))
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	ctx := c.UserContext()
	path, err := h.files.Save(ctx, "imports", store.NewID("import"), fh.Filename, src)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return respondError(c, NewAppError("FILE_TOO_LARGE", 413, err.Error()))
		}
		return fmt.Errorf("save upload: %w", err)
	}

	rc, err := h.files.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	rows, header, err := readCSV(rc)
	if err != nil {
		return respondError(c, NewAppError("INVALID_CSV", 400, err.Error()))
	}
	if missing := missingColumns(header); len(missing) > 0 {
		details := make([]ErrorDetail, len(missing))
		for i, col := range missing {
			details[i] = ErrorDetail{Field: col, Rule: "required", Message: fmt.Sprintf("Required column '%s' is missing", col)}
		}
		return respondError(c, &AppError{Code: "MISSING_COLUMNS", Status: 400, Message: "Missing required columns", Details: details, Missing: missing})
	}

	bookings := h.registry.GetEntity(metadata.CollectionBookings)
	report := &ImportReport{File: path, Errors: []ImportRowError{}}
	for i, row := range rows {
		n := i + 1
		body, rowErrs := csvRowToBooking(n, row)
		if len(rowErrs) == 0 {
			plan, details, err := PlanWrite(ctx, bookings, h.attrs, body, nil)
			switch {
			case err != nil:
				rowErrs = append(rowErrs, ImportRowError{Row: n, Message: err.Error()})
			case len(details) > 0:
				for _, d := range details {
					rowErrs = append(rowErrs, ImportRowError{Row: n, Field: d.Field, Message: d.Message})
				}
			default:
				if _, err := h.store.Insert(ctx, h.store.DB, bookings, plan.Fields); err != nil {
					rowErrs = append(rowErrs, ImportRowError{Row: n, Message: err.Error()})
				}
			}
		}
		if len(rowErrs) > 0 {
			report.Failed++
			report.Errors = append(report.Errors, rowErrs...)
			continue
		}
		report.Imported++
	}

	return c.JSON(fiber.Map{"data": report})
}

// readCSV returns the data rows keyed by trimmed header name.
func readCSV(r io.Reader) ([]map[string]string, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("csv file is empty")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []map[string]string
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range csvRequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// csvRowToBooking validates one CSV row and maps it to booking fields.
func csvRowToBooking(n int, row map[string]string) (map[string]any, []ImportRowError) {
	var errs []ImportRowError
	for _, col := range csvRequiredColumns {
		if row[col] == "" {
			errs = append(errs, ImportRowError{Row: n, Field: col, Message: fmt.Sprintf("Required field '%s' is empty", col)})
		}
	}
	if email := row["email"]; email != "" && !csvEmailPattern.MatchString(email) {
		errs = append(errs, ImportRowError{Row: n, Field: "email", Message: "Invalid email format"})
	}
	if date := row["booking_date"]; date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil || !csvDatePattern.MatchString(date) {
			errs = append(errs, ImportRowError{Row: n, Field: "booking_date", Message: "Invalid date format (use YYYY-MM-DD)"})
		}
	}

	participants := int64(1)
	if gs := row["group_size"]; gs != "" {
		v, err := strconv.ParseInt(gs, 10, 64)
		if err != nil || v < 1 {
			errs = append(errs, ImportRowError{Row: n, Field: "group_size", Message: "Group size must be a positive number"})
		}
		participants = v
	}
	total := 0.0
	if amt := row["total_amount"]; amt != "" {
		v, err := strconv.ParseFloat(amt, 64)
		if err != nil {
			errs = append(errs, ImportRowError{Row: n, Field: "total_amount", Message: "Total amount must be a number"})
		}
		total = v
	}
	if len(errs) > 0 {
		return nil, errs
	}

	status := row["status"]
	if status == "" {
		status = "pending"
	}
	return map[string]any{
		"customer_name":        row["customer_name"],
		"customer_email":       row["email"],
		"customer_phone":       row["phone"],
		"tour_name":            row["tour_type"],
		"tour_date":            row["booking_date"],
		"participants":         participants,
		"total_price":          total,
		"special_requirements": row["special_requirements"],
		"status":               status,
		"booking_platform":     "csv",
	}, nil
}
