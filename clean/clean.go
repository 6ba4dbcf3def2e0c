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

package clean

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/validate"
)

// Package clean implements the cleaning stage of the transaction pipeline.
// Cleaning normalizes representation and imputes missing values; it never
// invents validity. The stage is a total function over well-formed records
// and is idempotent: cleaning an already-clean record is a no-op.

// CanonicalDateLayout is the single date format rows carry after cleaning.
const CanonicalDateLayout = "2006-01-02"

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

// numericFields are converted to float64 or nil during cleaning.
var numericFields = []string{"amount", "risk_score"}

// Merchant-category imputation buckets, by amount.
const (
	retailThreshold       = 1_000_000
	foodBeverageThreshold = 100_000
)

// Row cleans a single record and returns a fresh one. Operations run in a
// fixed order: trim, date normalization, currency nulling, numeric
// conversion, merchant-category imputation.
func Row(record core.Record) core.Record {
	out := make(core.Record, len(record))
	for k, v := range record {
		if k == validate.ResultField {
			out[k] = v
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = strings.TrimSpace(s)
		} else {
			out[k] = v
		}
	}

	if _, ok := out["transaction_date"]; ok {
		out["transaction_date"] = normalizeDate(out["transaction_date"])
	}

	if _, ok := out["currency"]; ok {
		out["currency"] = cleanCurrency(out["currency"], record)
	}

	for _, field := range numericFields {
		if _, ok := out[field]; ok {
			out[field] = cleanNumeric(out[field])
		}
	}

	// A negative amount fails the amount rule; it is nulled so no
	// amount-derived feature is computed from it.
	if amount, ok := out["amount"].(float64); ok && amount < 0 {
		out["amount"] = nil
	}

	imputeMerchantCategory(out)

	return out
}

// Rows returns the cleaning stage as a pipeline transformer.
func Rows() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		return Row(record), nil
	})
}

// normalizeDate rewrites a date to the canonical layout, accepting either
// source format. Unparseable dates become nil rather than raising.
func normalizeDate(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}
	return nil
}

// cleanCurrency nulls a currency that failed its validation rule. The
// attached annotation is consulted when present; unannotated records fall
// back to the allowed set, matched exactly as the validator does. No case
// normalization and no default currency is ever guessed.
func cleanCurrency(value interface{}, record core.Record) interface{} {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if result, ok := validate.ResultOf(record); ok {
		if result.Fields["currency"] == validate.OutcomeInvalid {
			return nil
		}
		return s
	}

	for _, c := range validate.Currencies {
		if s == c {
			return s
		}
	}
	return nil
}

// cleanNumeric converts a numeric field to float64, or nil when it does not
// parse. Already-converted values pass through untouched.
func cleanNumeric(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return value
	}
}

// imputeMerchantCategory fills an absent merchant_category from the cleaned
// amount bucket. Imputation is skipped when the amount itself is absent.
func imputeMerchantCategory(out core.Record) {
	if s, ok := out["merchant_category"].(string); ok && s != "" {
		return // present, keep as-is
	}

	amount, ok := out["amount"].(float64)
	if !ok {
		// Amount absent: normalize an empty category to nil, never guess.
		if _, present := out["merchant_category"]; present {
			out["merchant_category"] = nil
		}
		return
	}

	switch {
	case amount > retailThreshold:
		out["merchant_category"] = "RETAIL"
	case amount > foodBeverageThreshold:
		out["merchant_category"] = "FOOD_BEVERAGE"
	default:
		out["merchant_category"] = "OTHERS"
	}
}
