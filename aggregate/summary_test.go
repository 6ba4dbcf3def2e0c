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

package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/validate"
)

func annotated(amount float64, currency string, valid bool, anomalies []string) core.Record {
	record := core.Record{
		"amount":   amount,
		"currency": currency,
	}
	record[validate.ResultField] = validate.Result{
		Valid:     valid,
		Anomalies: anomalies,
	}
	return record
}

func TestSummary_Counts(t *testing.T) {
	summary := NewSummary()
	ctx := context.Background()

	require.NoError(t, summary.Add(ctx, annotated(100, "IDR", true, nil)))
	require.NoError(t, summary.Add(ctx, annotated(200, "USD", true, nil)))
	require.NoError(t, summary.Add(ctx, annotated(300, "IDR", false, nil)))
	require.NoError(t, summary.Add(ctx, annotated(15000000, "SGD", true, []string{"amount exceeds 10000000"})))

	result, err := summary.Result()
	require.NoError(t, err)

	assert.Equal(t, int64(4), result["rows"])
	assert.Equal(t, int64(3), result["valid_rows"])
	assert.Equal(t, int64(1), result["invalid_rows"])
	assert.Equal(t, int64(1), result["flagged_rows"])
	assert.Equal(t, 15000600.0, result["amount_total"])

	byCurrency, ok := result["by_currency"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(2), byCurrency["IDR"])
	assert.Equal(t, int64(1), byCurrency["USD"])
	assert.Equal(t, int64(1), byCurrency["SGD"])
}

// Unannotated records still count toward rows and totals; they just carry
// no verdict.
func TestSummary_UnannotatedRecord(t *testing.T) {
	summary := NewSummary()
	ctx := context.Background()

	require.NoError(t, summary.Add(ctx, core.Record{"amount": 50.0, "currency": "USD"}))

	result, err := summary.Result()
	require.NoError(t, err)

	assert.Equal(t, int64(1), result["rows"])
	assert.Equal(t, int64(0), result["valid_rows"])
	assert.Equal(t, int64(0), result["invalid_rows"])
	assert.Equal(t, 50.0, result["amount_total"])
}

func TestSummary_NilAmountSkipped(t *testing.T) {
	summary := NewSummary()
	ctx := context.Background()

	record := annotated(0, "IDR", true, nil)
	record["amount"] = nil
	require.NoError(t, summary.Add(ctx, record))

	result, err := summary.Result()
	require.NoError(t, err)
	assert.Equal(t, 0.0, result["amount_total"])
	assert.Equal(t, int64(1), result["rows"])
}

func TestSummary_Reset(t *testing.T) {
	summary := NewSummary()
	ctx := context.Background()

	require.NoError(t, summary.Add(ctx, annotated(100, "IDR", true, nil)))
	summary.Reset()

	result, err := summary.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), result["rows"])
	assert.Empty(t, result["by_currency"])
}

func TestSummary_ObservePassesThrough(t *testing.T) {
	summary := NewSummary()
	ctx := context.Background()

	record := annotated(250, "USD", true, nil)
	out, err := summary.Observe().Transform(ctx, record)
	require.NoError(t, err)

	assert.Equal(t, record, out)

	result, err := summary.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), result["rows"])
}
