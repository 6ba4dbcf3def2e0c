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

package transform

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/banketl/clean"
	"github.com/aaronlmathis/banketl/core"
)

// Package transform implements the final stage of the transaction pipeline:
// typed conversion of cleaned fields plus derived feature computation.
//
// The transaction date is the one field whose absence fails a row, since
// every derived feature depends on a dated record. A missing amount degrades
// gracefully instead: amount and its derived features become nil.

// LargeTransactionThreshold is the amount above which is_large_transaction
// is set.
const LargeTransactionThreshold = 5_000_000

// ConversionError reports a per-row conversion failure. It is localized to
// the offending row; the pipeline's error strategy decides whether the run
// continues.
type ConversionError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s from %v: %v", e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Row converts a cleaned record to its typed form and adds the derived
// features. The input is never mutated.
func Row(record core.Record) (core.Record, error) {
	out := record.Clone()

	date, err := convertDate(record["transaction_date"])
	if err != nil {
		return nil, err
	}
	out["transaction_date"] = date

	amount, hasAmount := toFloat(record["amount"])
	if hasAmount {
		out["amount"] = amount
	} else {
		out["amount"] = nil
	}

	if _, present := record["risk_score"]; present {
		if score, ok := toFloat(record["risk_score"]); ok {
			out["risk_score"] = score
		} else {
			out["risk_score"] = nil
		}
	}

	if hasAmount {
		out["is_large_transaction"] = amount > LargeTransactionThreshold
	} else {
		out["is_large_transaction"] = nil
	}

	if currency, ok := record["currency"].(string); ok && currency != "" {
		out["is_crossborder"] = currency != "IDR"
	} else {
		out["is_crossborder"] = nil
	}

	out["transaction_day"] = date.Weekday().String()

	// Guard, not a bug: the log of a non-positive amount is undefined.
	if hasAmount && amount > 0 {
		out["amount_log"] = math.Log(amount)
	} else {
		out["amount_log"] = nil
	}

	return out, nil
}

// Rows returns the transformation stage as a pipeline transformer.
func Rows() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		return Row(record)
	})
}

// convertDate parses a canonical-format date into a calendar value. Cleaned
// rows that already carry a time.Time pass through unchanged.
func convertDate(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			break
		}
		t, err := time.Parse(clean.CanonicalDateLayout, s)
		if err != nil {
			return time.Time{}, &ConversionError{Field: "transaction_date", Value: v, Err: err}
		}
		return t, nil
	}
	return time.Time{}, &ConversionError{
		Field: "transaction_date",
		Value: value,
		Err:   fmt.Errorf("value is absent"),
	}
}

// toFloat converts a cleaned numeric value, reporting presence.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
