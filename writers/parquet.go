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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/banketl/core"
)

// This file implements a Parquet sink for transformed transactions. The
// schema is fixed rather than inferred: the pipeline's output columns are
// known, and a stable schema is what downstream warehouse loads expect.

// ParquetWriterError wraps Parquet-specific write errors with context.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "write_batch", "close")
	Err error  // Underlying error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterStats holds Parquet write performance statistics.
type ParquetWriterStats struct {
	RecordsWritten int64
	BatchesWritten int64
	WriteDuration  time.Duration
	LastWriteTime  time.Time
}

// TransactionSchema returns the Arrow schema for transformed transaction
// output. Everything is nullable: absent values are part of the data
// contract, not errors.
func TransactionSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "transaction_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "transaction_date", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		{Name: "customer_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "account_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "currency", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "direction", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "account_type", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "merchant_category", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "risk_score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "is_large_transaction", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "is_crossborder", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "transaction_day", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "amount_log", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "is_valid", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "violations", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "anomalies", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize   int
	Compression compress.Compression
	Allocator   memory.Allocator
}

// WriterOptionParquet is a functional option.
type WriterOptionParquet func(*ParquetWriterOptions)

func WithParquetBatchSize(size int) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) { opts.BatchSize = size }
}

func WithParquetCompression(codec compress.Compression) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) { opts.Compression = codec }
}

// ParquetWriter implements core.DataSink for Parquet files.
type ParquetWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	schema    *arrow.Schema
	allocator memory.Allocator
	recordBuf []core.Record
	batchSize int
	stats     ParquetWriterStats
	closed    bool
	mu        sync.Mutex
}

// NewParquetWriter creates a Parquet writer for the transaction schema at
// the given path.
func NewParquetWriter(path string, options ...WriterOptionParquet) (*ParquetWriter, error) {
	opts := ParquetWriterOptions{
		BatchSize:   1024,
		Compression: compress.Codecs.Snappy,
		Allocator:   memory.NewGoAllocator(),
	}
	for _, opt := range options {
		opt(&opts)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}

	schema := TransactionSchema()
	props := parquet.NewWriterProperties(parquet.WithCompression(opts.Compression))
	writer, err := pqarrow.NewFileWriter(schema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	return &ParquetWriter{
		file:      file,
		writer:    writer,
		schema:    schema,
		allocator: opts.Allocator,
		recordBuf: make([]core.Record, 0, opts.BatchSize),
		batchSize: opts.BatchSize,
	}, nil
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is closed")}
	}

	p.recordBuf = append(p.recordBuf, record)
	p.stats.RecordsWritten++

	if len(p.recordBuf) >= p.batchSize {
		return p.flushBufferUnsafe()
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	return p.flushBufferUnsafe()
}

// Close implements the core.DataSink interface. The Parquet footer is only
// written on Close; an unclosed file is unreadable.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if err := p.flushBufferUnsafe(); err != nil {
		return err
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return &ParquetWriterError{Op: "close", Err: err}
	}
	return p.file.Close()
}

// Stats returns write statistics.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// flushBufferUnsafe writes buffered records as one Arrow batch (must hold
// mutex).
func (p *ParquetWriter) flushBufferUnsafe() error {
	if len(p.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	builder := array.NewRecordBuilder(p.allocator, p.schema)
	defer builder.Release()

	for _, record := range p.recordBuf {
		for i, field := range p.schema.Fields() {
			appendValue(builder.Field(i), record[field.Name])
		}
	}

	batch := builder.NewRecord()
	defer batch.Release()

	if err := p.writer.Write(batch); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.LastWriteTime = time.Now()
	p.stats.WriteDuration += time.Since(start)
	p.recordBuf = p.recordBuf[:0]

	return nil
}

// appendValue appends one record value to its column builder, null when the
// value is absent or of an unexpected type.
func appendValue(b array.Builder, value interface{}) {
	if value == nil {
		b.AppendNull()
		return
	}

	switch builder := b.(type) {
	case *array.StringBuilder:
		if s, ok := value.(string); ok {
			builder.Append(s)
			return
		}
	case *array.Date32Builder:
		if t, ok := value.(time.Time); ok {
			builder.Append(arrow.Date32(t.Unix() / 86400))
			return
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			builder.Append(v)
			return
		case int:
			builder.Append(float64(v))
			return
		}
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			builder.Append(v)
			return
		}
	}

	b.AppendNull()
}
