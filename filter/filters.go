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

package filter

import (
	"context"

	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/validate"
)

// Package filter provides record filters for BankETL pipelines.
//
// The pipeline itself conserves rows; filters are the one explicit opt-in
// way for a caller to narrow the output (e.g., export only rows that passed
// validation, or only anomalous ones for review).

// Valid includes records that passed every hard rule, reading either the
// structured annotation or the flattened is_valid column. Records carrying
// neither are excluded.
func Valid() core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if result, ok := validate.ResultOf(record); ok {
			return result.Valid, nil
		}
		valid, ok := record["is_valid"].(bool)
		return ok && valid, nil
	})
}

// Invalid includes records that failed at least one hard rule.
func Invalid() core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if result, ok := validate.ResultOf(record); ok {
			return !result.Valid, nil
		}
		valid, ok := record["is_valid"].(bool)
		return ok && !valid, nil
	})
}

// Flagged includes records carrying at least one anomaly flag.
func Flagged() core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if result, ok := validate.ResultOf(record); ok {
			return len(result.Anomalies) > 0, nil
		}
		anomalies, ok := record["anomalies"].(string)
		return ok && anomalies != "", nil
	})
}

// CurrencyIn includes records whose currency is one of the given codes.
// Records with an absent currency are excluded.
func CurrencyIn(codes ...string) core.Filter {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		currency, ok := record["currency"].(string)
		return ok && set[currency], nil
	})
}

// AmountAbove includes records with a present amount greater than threshold.
func AmountAbove(threshold float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		amount, ok := record["amount"].(float64)
		return ok && amount > threshold, nil
	})
}

// NotNull includes records where the field is present, non-nil, and, for
// strings, non-empty.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && str == "" {
			return false, nil
		}
		return true, nil
	})
}

// And requires all provided filters to pass.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or requires at least one of the provided filters to pass.
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates the provided filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a filter from a plain predicate.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}
