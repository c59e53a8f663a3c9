package db

import (
	"context"
	"strings"
)

// MaxBatchSize is the number of rows written by one multi-row INSERT.
const MaxBatchSize = 100

// FlushFunc writes a group of pending rows.
type FlushFunc func(ctx context.Context, rows [][]interface{}) error

// StatementBatch accumulates rows and hands them to a flush function in
// groups of at most max rows.
type StatementBatch struct {
	flush   FlushFunc
	max     int
	pending [][]interface{}
	flushes int
}

// NewStatementBatch returns a batch that flushes once max rows are pending.
func NewStatementBatch(flush FlushFunc, max int) *StatementBatch {
	if max <= 0 {
		max = MaxBatchSize
	}
	return &StatementBatch{flush: flush, max: max}
}

// Add queues one row, flushing if the batch is full.
func (b *StatementBatch) Add(ctx context.Context, row ...interface{}) error {
	b.pending = append(b.pending, row)
	if len(b.pending) >= b.max {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes any pending rows.
func (b *StatementBatch) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	rows := b.pending
	b.pending = nil
	b.flushes++
	return b.flush(ctx, rows)
}

// Flushes is the number of flushes issued so far.
func (b *StatementBatch) Flushes() int {
	return b.flushes
}

// insertBatch returns a batch writing rows into table with one multi-row
// INSERT per flush.
func insertBatch(q querier, d dialect, table string, columns ...string) *StatementBatch {
	head := `INSERT INTO ` + table + ` (` + strings.Join(columns, ", ") + `) VALUES `
	return NewStatementBatch(func(ctx context.Context, rows [][]interface{}) error {
		args := make([]interface{}, 0, len(rows)*len(columns))
		for _, r := range rows {
			args = append(args, r...)
		}
		_, err := q.ExecContext(ctx, d.rebind(head+valuesList(len(rows), len(columns))), args...)
		return err
	}, MaxBatchSize)
}
