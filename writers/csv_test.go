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
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/validate"
)

// Mock writer for CSV testing
type mockCSVWriteCloser struct {
	*strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockCSVWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockCSVWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockCSVWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockCSVWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockCSVWriteCloser() *mockCSVWriteCloser {
	return &mockCSVWriteCloser{
		Builder: &strings.Builder{},
	}
}

// TestCSVWriter_BasicFunctionality tests core write operations
func TestCSVWriter_BasicFunctionality(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	ctx := context.Background()

	record := core.Record{
		"transaction_id": "TXN000000001",
		"customer_id":    "CUST-1",
		"amount":         15000.0,
		"currency":       "USD",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Len(t, lines, 2) // header + 1 data row

	reader := csv.NewReader(strings.NewReader(output))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	assert.True(t, mock.IsClosed())
}

// TestCSVWriter_CanonicalColumnOrder tests that derived headers follow the
// transaction layout with unknown fields appended alphabetically.
func TestCSVWriter_CanonicalColumnOrder(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"currency":             "IDR",
		"amount":               250000.0,
		"transaction_id":       "TXN000000002",
		"zebra_field":          "z",
		"alpha_field":          "a",
		validate.ResultField:   validate.Result{Valid: true},
		"is_large_transaction": false,
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)
	err = writer.Close()
	require.NoError(t, err)

	reader := csv.NewReader(strings.NewReader(mock.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)

	// Canonical columns come first, extras alphabetical, annotation dropped.
	expected := []string{"transaction_id", "amount", "currency", "is_large_transaction", "alpha_field", "zebra_field"}
	assert.Equal(t, expected, records[0])
}

// TestCSVWriter_WithHeaders tests explicit header specification
func TestCSVWriter_WithHeaders(t *testing.T) {
	mock := newMockCSVWriteCloser()
	headers := []string{"transaction_id", "amount", "currency"}
	writer, err := NewCSVWriter(mock, WithHeaders(headers))
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"transaction_id": "TXN000000003",
		"amount":         42.5,
		"currency":       "SGD",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	reader := csv.NewReader(strings.NewReader(mock.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, headers, records[0])
	assert.Equal(t, []string{"TXN000000003", "42.5", "SGD"}, records[1])
}

// TestCSVWriter_CustomDelimiter tests custom delimiter functionality
func TestCSVWriter_CustomDelimiter(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithComma(';'),
		WithHeaders([]string{"transaction_id", "amount"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"transaction_id": "TXN000000004",
		"amount":         10.0,
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	assert.Contains(t, output, "transaction_id;amount")
	assert.Contains(t, output, "TXN000000004;10")
}

// TestCSVWriter_NoHeaders tests writing without a header row
func TestCSVWriter_NoHeaders(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithWriteHeader(false),
		WithHeaders([]string{"transaction_id", "currency"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"transaction_id": "TXN000000005",
		"currency":       "USD",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(mock.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Equal(t, "TXN000000005,USD", lines[0])
}

// TestCSVWriter_BatchedWrites tests batching behavior
func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithCSVBatchSize(3),
		WithHeaders([]string{"transaction_id", "amount"}),
	)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := core.Record{"transaction_id": "TXN", "amount": float64(i * 10)}
		err = writer.Write(ctx, record)
		require.NoError(t, err)
	}

	err = writer.Flush()
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	reader := csv.NewReader(strings.NewReader(mock.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 6) // header + 5 data rows

	stats := writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)
	assert.Greater(t, stats.FlushCount, int64(0))
}

// TestCSVWriter_NullValueTracking tests null value statistics
func TestCSVWriter_NullValueTracking(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"transaction_id", "amount", "currency"}))
	require.NoError(t, err)

	ctx := context.Background()
	records := []core.Record{
		{"transaction_id": "TXN000000006", "amount": 30.0, "currency": nil},
		{"transaction_id": "TXN000000007", "amount": nil, "currency": "USD"},
		{"transaction_id": nil, "amount": 25.0, "currency": nil},
	}

	for _, record := range records {
		err = writer.Write(ctx, record)
		require.NoError(t, err)
	}

	err = writer.Close()
	require.NoError(t, err)

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.NullValueCounts["currency"])
	assert.Equal(t, int64(1), stats.NullValueCounts["amount"])
	assert.Equal(t, int64(1), stats.NullValueCounts["transaction_id"])

	reader := csv.NewReader(strings.NewReader(mock.String()))
	rows, err := reader.ReadAll()
	require.NoError(t, err)

	// Null values become empty strings in the output.
	assert.Equal(t, []string{"TXN000000006", "30", ""}, rows[1])
	assert.Equal(t, []string{"TXN000000007", "", "USD"}, rows[2])
	assert.Equal(t, []string{"", "25", ""}, rows[3])
}

// TestFormatValue tests text rendering of transaction values
func TestFormatValue(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    interface{}
		expected string
	}{
		{"nil", nil, ""},
		{"string", "TXN000000008", "TXN000000008"},
		{"date", date, "2024-03-15"},
		{"float_integral", 15000.0, "15000"},
		{"float_fractional", 42.5, "42.5"},
		{"bool_true", true, "true"},
		{"bool_false", false, "false"},
		{"int_fallback", 7, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatValue(tt.value))
		})
	}
}

// TestCSVWriter_ErrorHandling tests error conditions
func TestCSVWriter_ErrorHandling(t *testing.T) {
	t.Run("write_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithWriteHeader(true))
		require.NoError(t, err)

		mock.failWrite = true

		ctx := context.Background()
		record := core.Record{"transaction_id": "TXN000000009"}

		err = writer.Write(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "csv writer")
	})

	t.Run("close_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		mock.failClose = true
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)

		ctx := context.Background()
		record := core.Record{"transaction_id": "TXN000000010"}

		err = writer.Write(ctx, record)
		require.NoError(t, err)

		err = writer.Close()
		assert.Error(t, err)
	})

	t.Run("flush_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock,
			WithWriteHeader(false),
			WithHeaders([]string{"transaction_id"}),
		)
		require.NoError(t, err)

		ctx := context.Background()
		err = writer.Write(ctx, core.Record{"transaction_id": "TXN000000013"})
		require.NoError(t, err)

		mock.failWrite = true
		err = writer.Flush()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "csv writer")
	})

	t.Run("write_after_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithWriteHeader(true))
		require.NoError(t, err)

		mock.failWrite = true
		ctx := context.Background()
		record := core.Record{"transaction_id": "TXN000000011"}

		err = writer.Write(ctx, record)
		assert.Error(t, err)

		mock.failWrite = false
		err = writer.Write(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "error state")
	})
}

// TestCSVWriter_ConcurrentSafety tests thread safety
func TestCSVWriter_ConcurrentSafety(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithCSVBatchSize(10),
		WithHeaders([]string{"transaction_id", "amount"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	const numGoroutines = 5
	const recordsPerGoroutine = 3

	var wg sync.WaitGroup
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				record := core.Record{
					"transaction_id": "TXN",
					"amount":         float64(workerID*100 + j),
				}
				if err := writer.Write(ctx, record); err != nil {
					errChan <- err
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("Concurrent write error: %v", err)
	}

	err = writer.Close()
	require.NoError(t, err)

	stats := writer.Stats()
	assert.Equal(t, int64(numGoroutines*recordsPerGoroutine), stats.RecordsWritten)

	reader := csv.NewReader(strings.NewReader(mock.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, numGoroutines*recordsPerGoroutine+1) // +1 for header
}

// BenchmarkCSVWriter_Write benchmarks write performance
func BenchmarkCSVWriter_Write(b *testing.B) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithCSVBatchSize(1000),
		WithHeaders([]string{"transaction_id", "amount", "currency"}),
	)
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	record := core.Record{
		"transaction_id": "TXN000000012",
		"amount":         15000.0,
		"currency":       "IDR",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		record["amount"] = float64(i)
		if err := writer.Write(ctx, record); err != nil {
			b.Fatal(err)
		}
	}

	if err := writer.Close(); err != nil {
		b.Fatal(err)
	}
}
