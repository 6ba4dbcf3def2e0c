//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of BankETL.
//
// BankETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// BankETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with BankETL. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/banketl/core"
)

// This file implements a PostgreSQL sink that loads transformed transactions
// into a warehouse table using COPY batches.

// PostgresWriterError wraps PostgreSQL-specific write errors with context.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "connect", "copy", "commit")
	Err error  // The underlying error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RecordsWritten int64
	BatchesWritten int64
	WriteDuration  time.Duration
	LastWriteTime  time.Time
}

// defaultTransactionTable is the warehouse table transformed transactions
// land in unless overridden.
const defaultTransactionTable = "transactions"

// transactionTableDDL creates the target table when WithPostgresCreateTable
// is set. Column types mirror the Parquet schema.
const transactionTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	transaction_id       TEXT,
	transaction_date     DATE,
	customer_id          TEXT,
	account_id           TEXT,
	amount               DOUBLE PRECISION,
	currency             TEXT,
	direction            TEXT,
	account_type         TEXT,
	merchant_category    TEXT,
	risk_score           DOUBLE PRECISION,
	is_large_transaction BOOLEAN,
	is_crossborder       BOOLEAN,
	transaction_day      TEXT,
	amount_log           DOUBLE PRECISION,
	is_valid             BOOLEAN,
	violations           TEXT,
	anomalies            TEXT
)`

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	Table       string
	Columns     []string
	BatchSize   int
	CreateTable bool
}

// PostgresWriterOption represents a configuration function.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresTable sets the target table name.
func WithPostgresTable(table string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) { opts.Table = table }
}

// WithPostgresColumns sets the columns to load (order matters).
func WithPostgresColumns(columns []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithPostgresBatchSize sets the number of records per COPY batch.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) { opts.BatchSize = size }
}

// WithPostgresCreateTable creates the target table if it does not exist.
func WithPostgresCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) { opts.CreateTable = create }
}

// PostgresWriter implements core.DataSink for a PostgreSQL table.
type PostgresWriter struct {
	db        *sql.DB
	ownsDB    bool
	options   PostgresWriterOptions
	recordBuf []core.Record
	stats     PostgresWriterStats
	mu        sync.Mutex
}

// NewPostgresWriter connects with the given DSN and prepares the writer.
func NewPostgresWriter(ctx context.Context, dsn string, options ...PostgresWriterOption) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}

	w, err := NewPostgresWriterFromDB(ctx, db, options...)
	if err != nil {
		db.Close()
		return nil, err
	}
	w.ownsDB = true
	return w, nil
}

// NewPostgresWriterFromDB wraps an existing connection pool. The caller
// keeps ownership of db.
func NewPostgresWriterFromDB(ctx context.Context, db *sql.DB, options ...PostgresWriterOption) (*PostgresWriter, error) {
	opts := PostgresWriterOptions{
		Table:     defaultTransactionTable,
		Columns:   append([]string(nil), TransactionColumns...),
		BatchSize: 500,
	}
	for _, opt := range options {
		opt(&opts)
	}

	if opts.CreateTable {
		ddl := fmt.Sprintf(transactionTableDDL, pq.QuoteIdentifier(opts.Table))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, &PostgresWriterError{Op: "create_table", Err: err}
		}
	}

	return &PostgresWriter{
		db:        db,
		options:   opts,
		recordBuf: make([]core.Record, 0, opts.BatchSize),
	}, nil
}

// Write implements the core.DataSink interface.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recordBuf = append(w.recordBuf, record)
	w.stats.RecordsWritten++

	if len(w.recordBuf) >= w.options.BatchSize {
		return w.flushBufferUnsafe(ctx)
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBufferUnsafe(context.Background())
}

// Close implements the core.DataSink interface.
func (w *PostgresWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.ownsDB {
		return w.db.Close()
	}
	return nil
}

// Stats returns write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// flushBufferUnsafe loads buffered records in one COPY transaction (must
// hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) error {
	if len(w.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &PostgresWriterError{Op: "begin", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(w.options.Table, w.options.Columns...))
	if err != nil {
		tx.Rollback()
		return &PostgresWriterError{Op: "copy", Err: err}
	}

	for _, record := range w.recordBuf {
		args := make([]interface{}, len(w.options.Columns))
		for i, col := range w.options.Columns {
			args[i] = sqlValue(record[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return &PostgresWriterError{Op: "copy", Err: err}
		}
	}

	// Final Exec drains the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return &PostgresWriterError{Op: "copy", Err: err}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return &PostgresWriterError{Op: "copy", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PostgresWriterError{Op: "commit", Err: err}
	}

	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]

	return nil
}

// sqlValue maps record values to driver-friendly ones. Only true absence
// becomes NULL; empty strings are preserved.
func sqlValue(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	return value
}
