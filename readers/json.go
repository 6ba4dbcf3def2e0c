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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aaronlmathis/banketl/core"
)

// TransactionJSONReader implements core.DataSource for line-delimited JSON
// staging extracts. Each line is one transaction object. The structural
// contract matches the CSV loader: every object must carry the mandatory
// columns, and blank lines abort the load.
type TransactionJSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	stats   TransactionCSVReaderStats
	start   time.Time
}

// NewTransactionJSONReader creates a streaming loader over r. Unlike the CSV
// loader there is no header to validate up front, so structural failures
// surface from Read at the offending line.
func NewTransactionJSONReader(r io.ReadCloser) *TransactionJSONReader {
	return &TransactionJSONReader{
		scanner: bufio.NewScanner(r),
		closer:  r,
		start:   time.Now(),
	}
}

// NewTransactionJSONReaderFromFile opens path and constructs a loader over it.
func NewTransactionJSONReaderFromFile(path string) (*TransactionJSONReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoaderError{Op: "open", Err: err}
	}
	return NewTransactionJSONReader(f), nil
}

// Read implements the core.DataSource interface.
func (j *TransactionJSONReader) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &LoaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if !j.scanner.Scan() {
		if err := j.scanner.Err(); err != nil {
			return nil, &LoaderError{Op: "read", Line: j.line + 1, Err: err}
		}
		j.stats.LoadDuration = time.Since(j.start)
		return nil, io.EOF
	}
	j.line++

	line := j.scanner.Text()
	if strings.TrimSpace(line) == "" {
		return nil, &LoaderError{Op: "scan", Line: j.line, Err: &EmptyRowError{Line: j.line}}
	}

	var record core.Record
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, &LoaderError{Op: "decode", Line: j.line, Err: err}
	}

	if missing := missingMandatoryKeys(record); len(missing) > 0 {
		return nil, &LoaderError{Op: "scan", Line: j.line, Err: &MissingMandatoryColumnsError{Missing: missing}}
	}

	j.stats.RowsLoaded++
	j.stats.RecordsRead++
	j.stats.LastReadTime = time.Now()

	return record, nil
}

// Close implements the core.DataSource interface.
func (j *TransactionJSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Stats returns loader statistics.
func (j *TransactionJSONReader) Stats() TransactionCSVReaderStats {
	return j.stats
}

// missingMandatoryKeys returns the mandatory columns absent from the object.
// A key present with a null value counts as present; validation decides what
// to do with the value.
func missingMandatoryKeys(record core.Record) []string {
	var missing []string
	for _, col := range MandatoryColumns {
		if _, ok := record[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
