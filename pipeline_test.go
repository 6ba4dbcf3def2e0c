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

package banketl

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/banketl/filter"
	"github.com/aaronlmathis/banketl/validate"
)

// sliceSource serves a fixed batch of records.
type sliceSource struct {
	records []Record
	pos     int
	closed  bool
}

func (s *sliceSource) Read(ctx context.Context) (Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// captureSink collects everything written to it.
type captureSink struct {
	records []Record
	flushed bool
	closed  bool
}

func (c *captureSink) Write(ctx context.Context, record Record) error {
	c.records = append(c.records, record)
	return nil
}

func (c *captureSink) Flush() error {
	c.flushed = true
	return nil
}

func (c *captureSink) Close() error {
	c.closed = true
	return nil
}

func rawTransaction(id, date, amount, currency string) Record {
	return Record{
		"transaction_id":   id,
		"transaction_date": date,
		"customer_id":      "CUST-1",
		"account_id":       "ACC-1",
		"amount":           amount,
		"currency":         currency,
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "15000.50", "IDR"),
		rawTransaction("TXN000000002", "15/03/2024", "7500000", " USD "),
		rawTransaction("TXN000000003", "2024-03-15", "100", "usd"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 3)
	assert.True(t, source.closed)
	assert.True(t, sink.closed)

	first := sink.records[0]
	date, ok := first["transaction_date"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, "2024-03-15", date.Format("2006-01-02"))
	assert.Equal(t, false, first["is_crossborder"])
	assert.Equal(t, false, first["is_large_transaction"])

	second := sink.records[1]
	assert.Equal(t, "USD", second["currency"])
	assert.Equal(t, true, second["is_crossborder"])
	assert.Equal(t, true, second["is_large_transaction"])

	result, ok := validate.ResultOf(second)
	require.True(t, ok)
	assert.True(t, result.Valid)

	// Currency codes are matched exactly; a lowercase code is invalid and
	// gets nulled, so no currency feature is derived.
	third := sink.records[2]
	assert.Nil(t, third["currency"])
	assert.Nil(t, third["is_crossborder"])

	result, ok = validate.ResultOf(third)
	require.True(t, ok)
	assert.False(t, result.Valid)

	stats := pipeline.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(3), stats.RecordsWritten)
}

// A negative amount survives as a row but with amount nulled and every
// amount-derived feature absent.
func TestPipeline_NegativeAmount(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "-5", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 1)
	row := sink.records[0]
	assert.Nil(t, row["amount"])
	assert.Nil(t, row["is_large_transaction"])
	assert.Nil(t, row["amount_log"])
	assert.NotContains(t, row, "merchant_category")
	assert.Equal(t, "Friday", row["transaction_day"])

	result, ok := validate.ResultOf(row)
	require.True(t, ok)
	assert.False(t, result.Valid)
}

// Flattening replaces the structured annotation with plain export columns.
func TestPipeline_FlattenedExport(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "100", "IDR"),
		rawTransaction("bad-id", "2024-03-15", "25000000", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		Transform(validate.Flatten()).
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 2)

	good := sink.records[0]
	assert.NotContains(t, good, validate.ResultField)
	assert.Equal(t, true, good["is_valid"])
	assert.Equal(t, "", good["violations"])

	bad := sink.records[1]
	assert.NotContains(t, bad, validate.ResultField)
	assert.Equal(t, false, bad["is_valid"])
	assert.Contains(t, bad["violations"], "transaction_id:pattern")
	assert.Contains(t, bad["anomalies"], "amount exceeds")
}

// Filters run after all transformers, so the valid-only filter has to work
// from the flattened is_valid column when flattening is in the chain.
func TestPipeline_FlattenedValidOnly(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "100", "IDR"),
		rawTransaction("bad-id", "2024-03-15", "200", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		Filter(filter.Valid()).
		Transform(validate.Flatten()).
		To(sink).
		WithErrorStrategy(SkipErrors).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 1)
	assert.Equal(t, "TXN000000001", sink.records[0]["transaction_id"])
	assert.Equal(t, true, sink.records[0]["is_valid"])
	assert.Equal(t, int64(1), pipeline.Stats().RecordsFiltered)
}

// Every record read is written, failed, or filtered; nothing disappears.
func TestPipeline_RowConservation(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "100", "IDR"),
		rawTransaction("TXN000000002", "", "200", "IDR"), // fails at date conversion
		rawTransaction("TXN000000003", "2024-03-15", "999999999", "USD"),
		rawTransaction("TXN000000004", "2024-03-15", "300", "SGD"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		Filter(filter.CurrencyIn("IDR", "USD")).
		To(sink).
		WithErrorStrategy(SkipErrors).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	stats := pipeline.Stats()
	assert.Equal(t, int64(4), stats.RecordsRead)
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.RecordsFailed)
	assert.Equal(t, int64(1), stats.RecordsFiltered)
	assert.Equal(t, stats.RecordsRead,
		stats.RecordsWritten+stats.RecordsFailed+stats.RecordsFiltered)
}

func TestPipeline_FailFastStopsOnFirstError(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "", "100", "IDR"),
		rawTransaction("TXN000000002", "2024-03-15", "200", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		To(sink).
		WithErrorStrategy(FailFast).
		Build()
	require.NoError(t, err)

	err = pipeline.Execute(context.Background())
	require.Error(t, err)
	assert.Empty(t, sink.records)
}

func TestPipeline_CollectErrorsHandler(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "", "100", "IDR"),
		rawTransaction("TXN000000002", "", "200", "IDR"),
		rawTransaction("TXN000000003", "2024-03-15", "300", "IDR"),
	}}
	sink := &captureSink{}

	var collected []error
	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		To(sink).
		WithErrorStrategy(CollectErrors).
		WithErrorHandler(ErrorHandlerFunc(func(ctx context.Context, record Record, err error) error {
			collected = append(collected, err)
			return nil
		})).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	assert.Len(t, collected, 2)
	assert.Len(t, sink.records, 1)
}

func TestPipeline_ValidOnlyFilter(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "100", "IDR"),
		rawTransaction("bad-id", "2024-03-15", "200", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Validate().
		Clean().
		Enrich().
		Filter(filter.Valid()).
		To(sink).
		WithErrorStrategy(SkipErrors).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 1)
	assert.Equal(t, "TXN000000001", sink.records[0]["transaction_id"])
	assert.Equal(t, int64(1), pipeline.Stats().RecordsFiltered)
}

func TestPipeline_WhereAndMap(t *testing.T) {
	source := &sliceSource{records: []Record{
		{"transaction_id": "TXN000000001", "transaction_date": "2024-03-15", "amount": "100", "currency": "IDR"},
		{"transaction_id": "TXN000000002", "transaction_date": "2024-03-15", "amount": "200", "currency": "IDR"},
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().
		From(source).
		Clean().
		Map(func(ctx context.Context, record Record) (Record, error) {
			out := record.Clone()
			out["channel"] = "BATCH"
			return out, nil
		}).
		Where(func(ctx context.Context, record Record) (bool, error) {
			amount, _ := record["amount"].(float64)
			return amount > 150, nil
		}).
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 1)
	assert.Equal(t, "TXN000000002", sink.records[0]["transaction_id"])
	assert.Equal(t, "BATCH", sink.records[0]["channel"])
}

func TestBuild_RequiresSourceAndSink(t *testing.T) {
	_, err := NewPipeline().To(&captureSink{}).Build()
	assert.Error(t, err)

	_, err = NewPipeline().From(&sliceSource{}).Build()
	assert.Error(t, err)
}

func TestPipeline_ContextCancellation(t *testing.T) {
	source := &sliceSource{records: []Record{
		rawTransaction("TXN000000001", "2024-03-15", "100", "IDR"),
	}}
	sink := &captureSink{}

	pipeline, err := NewPipeline().From(source).To(sink).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pipeline.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
