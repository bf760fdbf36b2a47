package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_purchases_submission"}
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_purchases_submission"))
	assert.False(t, IsUniqueViolation(pgErr, "ux_other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_call_bookings_slot"}
	assert.True(t, IsUniqueViolation(pqErr, "ux_call_bookings_slot"))
	assert.True(t, IsUniqueViolation(pqErr, ""))

	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: call_bookings.product_id, call_bookings.start_time"), "ux_call_bookings_slot"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(errors.New("other")))
}
