// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"ghostwriter/internal/database"
	"ghostwriter/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// readDB returns the read replica when configured, otherwise primary.
func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.ReadDB; db != nil {
		return db
	}
	return primary
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// mapFindError converts a lookup error into an AppError.
func mapFindError(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Scope identifies whose data a query may see: the user's own rows plus,
// when AgencyID is set, rows shared with that agency.
type Scope struct {
	UserID   uint
	AgencyID *uint
}

// ScopeFor builds the visibility scope of a user.
func ScopeFor(u *models.User) Scope {
	return Scope{UserID: u.ID, AgencyID: u.AgencyID}
}

// visibleClients restricts a clients query to the scope.
func visibleClients(db *gorm.DB, s Scope) *gorm.DB {
	if s.AgencyID != nil {
		return db.Where("clients.user_id = ? OR clients.agency_id = ?", s.UserID, *s.AgencyID)
	}
	return db.Where("clients.user_id = ?", s.UserID)
}

// visibleClientIDs is a subquery of client ids in scope.
func visibleClientIDs(db *gorm.DB, s Scope) *gorm.DB {
	return visibleClients(db.Session(&gorm.Session{NewDB: true}).Model(&models.Client{}).Select("clients.id"), s)
}
