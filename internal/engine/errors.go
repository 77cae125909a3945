package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`

	// ResourceID names the existing record on a conflict.
	ResourceID string `json:"resource_id,omitempty"`
	// Missing lists absent required fields on a MISSING_FIELDS error.
	Missing []string `json:"-"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownCollectionError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_COLLECTION",
		Status:  404,
		Message: fmt.Sprintf("Unknown collection: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

// MissingFieldsError reports absent required input, one detail per field.
func MissingFieldsError(missing []string) *AppError {
	details := make([]ErrorDetail, len(missing))
	for i, f := range missing {
		details[i] = ErrorDetail{Field: f, Rule: "required", Message: f + " is required"}
	}
	return &AppError{
		Code:    "MISSING_FIELDS",
		Status:  400,
		Message: "Missing required fields",
		Details: details,
		Missing: missing,
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

// ResourceConflictError is a conflict naming the record that already exists.
func ResourceConflictError(msg, resourceID string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg, ResourceID: resourceID}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

// InternalError passes the underlying message through to the caller.
func InternalError(err error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Status: 500, Message: err.Error()}
}

// ErrorHandler renders AppErrors and fiber errors in the {"error": {...}} envelope.
// Anything else is logged and reported as a generic internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message}})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
