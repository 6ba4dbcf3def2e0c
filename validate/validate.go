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

package validate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/banketl/core"
)

// Package validate implements the validation stage of the transaction
// pipeline. Rules are fixed banking policy applied independently per row, in
// a fixed order, so violation lists are reproducible across runs. Outcomes
// are recorded on the record rather than raised: every row, valid or not,
// continues downstream.

// Outcome is the per-field validation verdict.
type Outcome int

const (
	// OutcomeValid marks a field that passed its rule.
	OutcomeValid Outcome = iota
	// OutcomeInvalid marks a field that failed a hard rule.
	OutcomeInvalid
	// OutcomeAnomaly marks a soft flag; the field still counts as valid.
	OutcomeAnomaly
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "VALID"
	case OutcomeInvalid:
		return "INVALID"
	case OutcomeAnomaly:
		return "ANOMALY"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Violation records a single failed rule for diagnostics.
type Violation struct {
	Field string
	Rule  string
}

func (v Violation) String() string {
	return v.Field + ":" + v.Rule
}

// Result is the validation annotation attached to a record. Valid is the
// conjunction of hard-rule outcomes; anomalies are tracked separately and
// never flip Valid.
type Result struct {
	Valid      bool
	Fields     map[string]Outcome
	Violations []Violation
	Anomalies  []string
}

// ResultField is the record key the annotation is stored under.
const ResultField = "_validation"

// AnomalyThreshold is the amount above which a transaction is flagged as a
// soft anomaly.
const AnomalyThreshold = 10_000_000

var (
	transactionIDPattern = regexp.MustCompile(`^TXN\d{9}$`)

	dateLayouts = []string{"2006-01-02", "02/01/2006"}

	// Currencies accepted by downstream settlement.
	Currencies = []string{"IDR", "USD", "SGD"}

	// Directions are the recognized transaction directions.
	Directions = []string{"DEBIT", "CREDIT"}

	// AccountTypes are the recognized account products.
	AccountTypes = []string{"SAVINGS", "CURRENT", "CREDIT_CARD", "LOAN"}
)

// fieldRule binds a field to its named check. Optional rules only run when
// the field is present and non-empty; absence is not itself a violation.
type fieldRule struct {
	field    string
	rule     string
	optional bool
	check    func(string) Outcome
}

// rules is evaluated in declaration order for deterministic violation lists.
var rules = []fieldRule{
	{field: "transaction_id", rule: "pattern", check: checkTransactionID},
	{field: "transaction_date", rule: "format", check: checkDate},
	{field: "amount", rule: "non_negative_number", check: checkAmount},
	{field: "currency", rule: "allowed_values", check: oneOf(Currencies)},
	{field: "direction", rule: "allowed_values", optional: true, check: oneOf(Directions)},
	{field: "account_type", rule: "allowed_values", optional: true, check: oneOf(AccountTypes)},
}

// Row validates a single record against the rule table.
func Row(record core.Record) Result {
	result := Result{
		Valid:  true,
		Fields: make(map[string]Outcome, len(rules)),
	}

	for _, r := range rules {
		value := strings.TrimSpace(record.String(r.field))
		if r.optional && value == "" {
			continue
		}

		outcome := r.check(value)
		result.Fields[r.field] = outcome

		switch outcome {
		case OutcomeInvalid:
			result.Valid = false
			result.Violations = append(result.Violations, Violation{Field: r.field, Rule: r.rule})
		case OutcomeAnomaly:
			result.Anomalies = append(result.Anomalies,
				fmt.Sprintf("%s exceeds %d", r.field, AnomalyThreshold))
		}
	}

	return result
}

// Rows returns the validation stage as a pipeline transformer. The input
// record is cloned and the annotation attached under ResultField.
func Rows() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := record.Clone()
		out[ResultField] = Row(record)
		return out, nil
	})
}

// ResultOf extracts the annotation from a validated record.
func ResultOf(record core.Record) (Result, bool) {
	v, ok := record[ResultField]
	if !ok {
		return Result{}, false
	}
	result, ok := v.(Result)
	return result, ok
}

// Flatten returns a transformer that replaces the structured annotation with
// plain export columns: is_valid, violations, anomalies.
func Flatten() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result, ok := ResultOf(record)
		if !ok {
			return record, nil
		}

		out := record.Clone()
		delete(out, ResultField)
		out["is_valid"] = result.Valid

		parts := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			parts = append(parts, v.String())
		}
		out["violations"] = strings.Join(parts, ";")
		out["anomalies"] = strings.Join(result.Anomalies, ";")

		return out, nil
	})
}

func checkTransactionID(value string) Outcome {
	if transactionIDPattern.MatchString(value) {
		return OutcomeValid
	}
	return OutcomeInvalid
}

func checkDate(value string) Outcome {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return OutcomeValid
		}
	}
	return OutcomeInvalid
}

func checkAmount(value string) Outcome {
	if value == "" {
		return OutcomeInvalid
	}
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil || amount < 0 {
		return OutcomeInvalid
	}
	if amount > AnomalyThreshold {
		return OutcomeAnomaly
	}
	return OutcomeValid
}

func oneOf(allowed []string) func(string) Outcome {
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[v] = true
	}
	return func(value string) Outcome {
		if set[value] {
			return OutcomeValid
		}
		return OutcomeInvalid
	}
}
