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
	"github.com/aaronlmathis/banketl/core"
)

// Package banketl assembles the transaction pipeline: a loader feeding the
// fixed validate -> clean -> transform stage chain into a sink. The concrete
// types live in core; this package re-exports them so pipeline callers need
// a single import.

// Record represents a single transaction row in the pipeline.
type Record = core.Record

// DataSource is the interface loaders implement.
type DataSource = core.DataSource

// DataSink is the interface output writers implement.
type DataSink = core.DataSink

// Transformer is the interface pipeline stages implement.
type Transformer = core.Transformer

// Filter decides whether a record is included in the output.
type Filter = core.Filter

// ErrorHandler receives per-record errors under SkipErrors/CollectErrors.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc adapts an ordinary function to ErrorHandler.
type ErrorHandlerFunc = core.ErrorHandlerFunc

// ErrorStrategy selects how per-record errors are handled.
type ErrorStrategy = core.ErrorStrategy

const (
	// FailFast stops processing on the first error encountered.
	FailFast = core.FailFast
	// SkipErrors continues processing, skipping failed records.
	SkipErrors = core.SkipErrors
	// CollectErrors continues processing, handing every error to the handler.
	CollectErrors = core.CollectErrors
)
