package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict: нарушение уникальности (повторный матч, второй активный звонок в матче).
	ErrConflict = errors.New("conflict")
)

type rowScanner interface{ Scan(dest ...any) error }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
