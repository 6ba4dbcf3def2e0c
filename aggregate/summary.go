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

	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/validate"
)

// Summary aggregates a validated transaction batch into the end-of-run
// report: row counts by verdict, amount totals, and per-currency volumes.
// It implements Aggregator and can also be dropped into a pipeline as a
// pass-through transformer via Observe.
type Summary struct {
	rows        int64
	valid       int64
	invalid     int64
	flagged     int64
	amountTotal float64
	byCurrency  map[string]int64
}

// NewSummary creates an empty batch summary.
func NewSummary() *Summary {
	return &Summary{byCurrency: make(map[string]int64)}
}

// Add implements the Aggregator interface.
func (s *Summary) Add(ctx context.Context, record core.Record) error {
	s.rows++

	if result, ok := validate.ResultOf(record); ok {
		if result.Valid {
			s.valid++
		} else {
			s.invalid++
		}
		if len(result.Anomalies) > 0 {
			s.flagged++
		}
	}

	if amount, ok := record["amount"].(float64); ok {
		s.amountTotal += amount
	}
	if currency, ok := record["currency"].(string); ok && currency != "" {
		s.byCurrency[currency]++
	}

	return nil
}

// Result implements the Aggregator interface.
func (s *Summary) Result() (core.Record, error) {
	currencies := make(map[string]int64, len(s.byCurrency))
	for k, v := range s.byCurrency {
		currencies[k] = v
	}
	return core.Record{
		"rows":         s.rows,
		"valid_rows":   s.valid,
		"invalid_rows": s.invalid,
		"flagged_rows": s.flagged,
		"amount_total": s.amountTotal,
		"by_currency":  currencies,
	}, nil
}

// Reset implements the Aggregator interface.
func (s *Summary) Reset() {
	s.rows = 0
	s.valid = 0
	s.invalid = 0
	s.flagged = 0
	s.amountTotal = 0
	s.byCurrency = make(map[string]int64)
}

// Observe returns a pass-through transformer that feeds every record into
// the summary without modifying it.
func (s *Summary) Observe() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		if err := s.Add(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	})
}
