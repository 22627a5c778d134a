package persistence

import (
	"errors"
	"strings"

	"github.com/municipal/backoffice/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique constraint failure
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

// translateWriteError maps unique violations to an ALREADY_EXISTS domain error
func translateWriteError(err error, message string) error {
	if isUniqueViolation(err) {
		return shared.NewConflictError(message)
	}
	return err
}

// notFound maps gorm.ErrRecordNotFound to shared.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// likePattern builds a case-insensitive LIKE pattern for LOWER(col) LIKE ?
func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

// paginate applies offset and limit of a normalized filter
func paginate(query *gorm.DB, filter shared.Filter) *gorm.DB {
	return query.Offset(filter.Offset()).Limit(filter.PageSize)
}

// orderBy applies a whitelisted ordering
func orderBy(query *gorm.DB, filter shared.Filter, allowed map[string]bool, defaultField string) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	return query.Order(field + " " + ValidateSortOrder(filter.OrderDir))
}
