package instrument

import (
	"github.com/gofiber/fiber/v2"

	"tours-backend/internal/metadata"
)

// Middleware returns a Fiber middleware that starts a root HTTP span for each
// request, injects the instrumenter into the request context and echoes the
// trace id in X-Trace-ID.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := WithInstrumenter(c.UserContext(), inst)

		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("http.method", c.Method())
		span.SetMetadata("http.path", c.Path())
		c.SetUserContext(ctx)

		if traceID := span.TraceID(); traceID != "" {
			c.Set("X-Trace-ID", traceID)
		}

		err := c.Next()

		// auth middleware sets c.Locals("user")
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}

		statusCode := c.Response().StatusCode()
		span.SetMetadata("http.status_code", statusCode)
		if statusCode >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}
