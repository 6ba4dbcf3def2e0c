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

package readers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/aaronlmathis/banketl/core"
)

// Package readers provides implementations of core.DataSource for reading
// transaction extracts from various sources.
//
// This file implements the loader stage: a CSV reader that enforces the
// structural contract of a transaction extract (mandatory columns, no blank
// rows, consistent column counts) before a single record is emitted. Any
// structural failure aborts construction; there is no partial-load mode.

// MandatoryColumns are the header columns every transaction extract must
// carry. The check runs once against the header, before rows are scanned.
var MandatoryColumns = []string{
	"transaction_id",
	"transaction_date",
	"customer_id",
	"account_id",
	"amount",
	"currency",
}

// LoaderError is the base error for the loader stage. Structural failures
// wrap one of the typed errors below so callers can branch with errors.As.
type LoaderError struct {
	Op   string // Operation that failed (e.g., "open", "read_header", "scan")
	Line int    // 1-based input line, 0 when not row-specific
	Err  error  // Underlying error
}

func (e *LoaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("loader %s (line %d): %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("loader %s: %v", e.Op, e.Err)
}

func (e *LoaderError) Unwrap() error {
	return e.Err
}

// EmptyRowError reports a data line that is entirely blank after trimming.
// Blank rows indicate upstream corruption and are never silently skipped.
type EmptyRowError struct {
	Line int
}

func (e *EmptyRowError) Error() string {
	return fmt.Sprintf("empty row detected at line %d", e.Line)
}

// WrongColumnCountError reports a data line whose value count differs from
// the header's field count.
type WrongColumnCountError struct {
	Line     int
	Expected int
	Actual   int
}

func (e *WrongColumnCountError) Error() string {
	return fmt.Sprintf("wrong column count at line %d: expected %d, got %d", e.Line, e.Expected, e.Actual)
}

// MissingMandatoryColumnsError reports a header that omits mandatory fields.
// This is a failure of the whole file, detected before any row is emitted.
type MissingMandatoryColumnsError struct {
	Missing []string
}

func (e *MissingMandatoryColumnsError) Error() string {
	return fmt.Sprintf("missing mandatory columns: %s", strings.Join(e.Missing, ", "))
}

// TransactionCSVReaderStats holds statistics about a completed load.
type TransactionCSVReaderStats struct {
	RowsLoaded   int64
	RecordsRead  int64
	LoadDuration time.Duration
	LastReadTime time.Time
}

// TransactionCSVReaderOptions configures the transaction CSV loader.
type TransactionCSVReaderOptions struct {
	Comma  rune
	Logger *log.Logger
}

// ReaderOptionCSV allows functional customization of TransactionCSVReader.
type ReaderOptionCSV func(*TransactionCSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *TransactionCSVReaderOptions) { o.Comma = r }
}

func WithCSVLogger(logger *log.Logger) ReaderOptionCSV {
	return func(o *TransactionCSVReaderOptions) { o.Logger = logger }
}

// TransactionCSVReader implements core.DataSource for transaction extracts.
// The whole extract is scanned and buffered at construction time so that
// structural failures surface atomically; Read then streams the buffered
// rows as raw-string records in input order.
type TransactionCSVReader struct {
	headers []string
	rows    [][]string
	next    int
	closer  io.Closer
	stats   TransactionCSVReaderStats
	opts    TransactionCSVReaderOptions
}

// NewTransactionCSVReader creates a loader over r and performs the
// structural pass. It returns a LoaderError wrapping EmptyRowError,
// WrongColumnCountError, or MissingMandatoryColumnsError on malformed
// input, or a plain LoaderError for other read failures.
func NewTransactionCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*TransactionCSVReader, error) {
	opts := TransactionCSVReaderOptions{
		Comma:  ',',
		Logger: log.Default(),
	}
	for _, opt := range options {
		opt(&opts)
	}

	start := time.Now()

	raw, err := io.ReadAll(r)
	if err != nil {
		r.Close()
		return nil, &LoaderError{Op: "read", Err: err}
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1 // column counts are checked here, per line
	cr.TrimLeadingSpace = false

	header, err := cr.Read()
	if err != nil {
		r.Close()
		return nil, &LoaderError{Op: "read_header", Err: err}
	}
	headerLine, _ := cr.FieldPos(0)
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	// An incomplete header fails the file before any row-level check.
	if missing := missingMandatory(headers); len(missing) > 0 {
		r.Close()
		opts.Logger.Error("transaction extract header incomplete", "missing", missing)
		return nil, &LoaderError{Op: "read_header", Err: &MissingMandatoryColumnsError{Missing: missing}}
	}

	// encoding/csv silently skips blank lines, so blank rows are found by
	// comparing each record's reported position against the line the next
	// record should start on. A header past line 1 means blank lines
	// preceded it.
	if headerLine > 1 {
		r.Close()
		opts.Logger.Warn("empty row in transaction extract", "line", 1)
		return nil, &LoaderError{Op: "scan", Line: 1, Err: &EmptyRowError{Line: 1}}
	}
	next := headerLine + linesSpanned(header)

	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := next
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			r.Close()
			return nil, &LoaderError{Op: "read_row", Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if line > next {
			r.Close()
			opts.Logger.Warn("empty row in transaction extract", "line", next)
			return nil, &LoaderError{Op: "scan", Line: next, Err: &EmptyRowError{Line: next}}
		}
		if allBlank(row) {
			r.Close()
			opts.Logger.Warn("empty row in transaction extract", "line", line)
			return nil, &LoaderError{Op: "scan", Line: line, Err: &EmptyRowError{Line: line}}
		}
		if len(row) != len(headers) {
			r.Close()
			opts.Logger.Error("column count mismatch", "line", line, "expected", len(headers), "got", len(row))
			return nil, &LoaderError{Op: "scan", Line: line, Err: &WrongColumnCountError{
				Line:     line,
				Expected: len(headers),
				Actual:   len(row),
			}}
		}
		rows = append(rows, row)
		next = line + linesSpanned(row)
	}

	// A skipped blank line at the end of input leaves next short of the
	// real line count.
	if total := countLines(raw); next <= total {
		r.Close()
		opts.Logger.Warn("empty row in transaction extract", "line", next)
		return nil, &LoaderError{Op: "scan", Line: next, Err: &EmptyRowError{Line: next}}
	}

	reader := &TransactionCSVReader{
		headers: headers,
		rows:    rows,
		closer:  r,
		opts:    opts,
		stats: TransactionCSVReaderStats{
			RowsLoaded:   int64(len(rows)),
			LoadDuration: time.Since(start),
		},
	}

	opts.Logger.Info("loaded transaction extract", "rows", len(rows), "columns", len(headers))
	return reader, nil
}

// NewTransactionCSVReaderFromFile opens path and constructs a loader over it.
func NewTransactionCSVReaderFromFile(path string, options ...ReaderOptionCSV) (*TransactionCSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoaderError{Op: "open", Err: err}
	}
	return NewTransactionCSVReader(f, options...)
}

// Read implements the core.DataSource interface. Values are handed through
// as the raw strings from the extract; the cleaning stage owns trimming and
// type conversion.
func (c *TransactionCSVReader) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &LoaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if c.next >= len(c.rows) {
		return nil, io.EOF
	}

	row := c.rows[c.next]
	c.next++

	record := make(core.Record, len(c.headers))
	for i, key := range c.headers {
		record[key] = row[i]
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()

	return record, nil
}

// Close implements the core.DataSource interface.
func (c *TransactionCSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Headers returns the extract's column order.
func (c *TransactionCSVReader) Headers() []string {
	return append([]string(nil), c.headers...)
}

// Stats returns loader statistics.
func (c *TransactionCSVReader) Stats() TransactionCSVReaderStats {
	return c.stats
}

// missingMandatory returns the mandatory columns absent from headers.
func missingMandatory(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, col := range MandatoryColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// allBlank reports whether every field is empty after trimming.
func allBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// linesSpanned is the number of input lines a parsed record covers; quoted
// fields can carry embedded newlines.
func linesSpanned(row []string) int {
	n := 1
	for _, field := range row {
		n += strings.Count(field, "\n")
	}
	return n
}

// countLines is the number of lines in raw, not counting a trailing newline
// as starting another.
func countLines(raw []byte) int {
	if len(raw) == 0 {
		return 0
	}
	n := bytes.Count(raw, []byte("\n"))
	if raw[len(raw)-1] != '\n' {
		n++
	}
	return n
}
