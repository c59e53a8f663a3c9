package db

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrConnectionTimeout is returned when no connection could be acquired
// within the configured connect timeout.
var ErrConnectionTimeout = errors.New("timed out acquiring a database connection")

// StorageError reports a failed load, save or lookup against the database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("region storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Cause() error  { return e.Err }

// MigrationError reports that the schema could not be brought up to date.
// Loads and saves are refused until a later Initialize succeeds.
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("region schema migration: %v", e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
func (e *MigrationError) Cause() error  { return e.Err }

// DifferenceSaveError reports a failed incremental save. The world's stored
// state is unchanged.
type DifferenceSaveError struct {
	Err error
}

func (e *DifferenceSaveError) Error() string {
	return fmt.Sprintf("saving region changes: %v", e.Err)
}

func (e *DifferenceSaveError) Unwrap() error { return e.Err }
func (e *DifferenceSaveError) Cause() error  { return e.Err }

// storageErr wraps err as a StorageError unless it already carries a store
// error kind.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	var me *MigrationError
	var de *DifferenceSaveError
	if errors.As(err, &se) || errors.As(err, &me) || errors.As(err, &de) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
