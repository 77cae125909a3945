package engine

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
	"tours-backend/internal/store"
)

const upcomingLimit = 5

type DashboardStats struct {
	TotalBookings int64                             `json:"total_bookings"`
	ByCategory    map[metadata.StatusCategory]int64 `json:"bookings_by_category"`
	Revenue       float64                           `json:"revenue"`
	Assets        map[string]int64                  `json:"assets_by_status"`
	Upcoming      []map[string]any                  `json:"upcoming"`
}

// Stats handles GET /api/stats. Revenue excludes cancelled bookings.
func (h *Handler) Stats(c *fiber.Ctx) error {
	user := getUser(c)
	if err := CheckPermission(user, metadata.CollectionBookings, ActionRead); err != nil {
		return err
	}

	ctx := c.UserContext()
	stats := &DashboardStats{
		ByCategory: make(map[metadata.StatusCategory]int64, len(metadata.StatusCategories)),
		Assets:     make(map[string]int64, len(metadata.AssetStatuses)),
	}
	for _, cat := range metadata.StatusCategories {
		stats.ByCategory[cat] = 0
	}
	for _, s := range metadata.AssetStatuses {
		stats.Assets[s] = 0
	}

	rows, err := store.QueryRows(ctx, h.store.DB,
		"SELECT status, COUNT(*) AS n, SUM(total_price) AS revenue FROM bookings GROUP BY status")
	if err != nil {
		return fmt.Errorf("booking stats: %w", err)
	}
	for _, row := range rows {
		n := countValue(row["n"])
		status, _ := row["status"].(string)
		cat := metadata.ClassifyStatus(status)
		stats.TotalBookings += n
		stats.ByCategory[cat] += n
		if cat != metadata.StatusCancelled {
			if rev, ok := toFloat64(row["revenue"]); ok {
				stats.Revenue += rev
			}
		}
	}

	rows, err = store.QueryRows(ctx, h.store.DB, "SELECT status, COUNT(*) AS n FROM assets GROUP BY status")
	if err != nil {
		return fmt.Errorf("asset stats: %w", err)
	}
	for _, row := range rows {
		status, _ := row["status"].(string)
		stats.Assets[status] += countValue(row["n"])
	}

	today := time.Now().UTC().Format("2006-01-02")
	stats.Upcoming, err = h.store.Find(ctx, h.store.DB, metadata.BookingsEntity(), store.Query{
		Filters: []store.Filter{{Field: "tour_date", Op: store.OpGte, Value: today}},
		Sort:    []store.SortField{{Field: "tour_date"}, {Field: "tour_time"}},
		Limit:   upcomingLimit,
	})
	if err != nil {
		return fmt.Errorf("upcoming bookings: %w", err)
	}

	return c.JSON(fiber.Map{"data": stats})
}

func countValue(v any) int64 {
	f, _ := toFloat64(v)
	return int64(f)
}
