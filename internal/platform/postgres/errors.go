package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeRaiseException      = "P0001"
	codeInvalidText         = "22P02"
)

func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsImmutableViolation reports errors raised by the immutability triggers.
func IsImmutableViolation(err error) bool {
	return pgCode(err) == codeRaiseException
}

// IsInvalidText reports values the column type could not parse, such as a
// malformed uuid.
func IsInvalidText(err error) bool {
	return pgCode(err) == codeInvalidText
}

// ConstraintName returns the violated constraint, if the error carries one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
