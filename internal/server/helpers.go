package server

import (
	"errors"
	"log/slog"
	"strings"

	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten means a helper already wrote the error response; the
// handler returns nil so the ErrorHandler leaves it alone.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam labels a route param for error messages: "id" -> "ID",
// "clientId" -> "client ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if name, ok := strings.CutSuffix(param, "Id"); ok && name != "" {
		return strings.ToLower(name) + " ID"
	}
	return param
}

// parseBody decodes the JSON body into dest, writing a 400 on failure.
// Callers should check: if err != nil { return nil }
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// statusForError maps a service error onto an HTTP status.
func statusForError(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeUpstream:
		if linkedin.NeedsReconnect(err) {
			return fiber.StatusBadRequest
		}
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError writes err with the status its code maps to. Errors
// without an AppError code are logged and hidden behind a generic message.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	if models.ErrorCode(err) == "" {
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, status, err)
}
