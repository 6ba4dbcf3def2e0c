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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/banketl/core"
)

// JSONWriter implements core.DataSink for line-delimited JSON output.
// Transaction dates marshal with the canonical date layout rather than the
// default RFC 3339 timestamp.
type JSONWriter struct {
	writer io.Writer
	closer io.Closer
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output.
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: w,
		closer: w,
	}
}

// Write implements the core.DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	data, err := json.Marshal(marshalable(record))
	if err != nil {
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}

	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}

	if _, err := j.writer.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush implements the core.DataSink interface.
func (j *JSONWriter) Flush() error {
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close implements the core.DataSink interface.
func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// marshalable rewrites values JSON cannot represent the way we want:
// calendar dates as plain YYYY-MM-DD strings.
func marshalable(record core.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		if t, ok := v.(time.Time); ok {
			out[k] = t.Format("2006-01-02")
			continue
		}
		out[k] = v
	}
	return out
}
