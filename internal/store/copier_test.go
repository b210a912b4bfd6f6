package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUndefinedTable(t *testing.T) {
	undefined := &pgconn.PgError{Code: "42P01", Message: `relation "public.migration_cursor" does not exist`}
	if !isUndefinedTable(undefined) {
		t.Error("42P01 not classified as undefined table")
	}
	if !isUndefinedTable(fmt.Errorf("loading cursor: %w", undefined)) {
		t.Error("wrapped 42P01 not classified as undefined table")
	}

	for _, err := range []error{
		&pgconn.PgError{Code: "42703"},
		errors.New("relation does not exist"),
		pgx.ErrNoRows,
		nil,
	} {
		if isUndefinedTable(err) {
			t.Errorf("isUndefinedTable(%v) = true", err)
		}
	}
}

func TestIsNoRows(t *testing.T) {
	if !isNoRows(pgx.ErrNoRows) {
		t.Error("pgx.ErrNoRows not classified")
	}
	if !isNoRows(fmt.Errorf("loading cursor: %w", pgx.ErrNoRows)) {
		t.Error("wrapped pgx.ErrNoRows not classified")
	}
	if isNoRows(errors.New("no rows")) {
		t.Error("unrelated error classified as no rows")
	}
}
