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
	"fmt"
	"io"

	"github.com/aaronlmathis/banketl/clean"
	"github.com/aaronlmathis/banketl/core"
	"github.com/aaronlmathis/banketl/transform"
	"github.com/aaronlmathis/banketl/validate"
)

// Package banketl provides the pipeline assembly for BankETL.
//
// A pipeline reads transaction records from a DataSource, pushes them
// through the stage chain, and writes them to a DataSink. The canonical
// assembly is:
//
//	pipeline, err := banketl.NewPipeline().
//	    From(loader).
//	    Validate().
//	    Clean().
//	    Enrich().
//	    To(writer).
//	    WithErrorStrategy(banketl.CollectErrors).
//	    Build()
//	if err != nil { log.Fatal(err) }
//	if err := pipeline.Execute(context.Background()); err != nil { log.Fatal(err) }
//
// Rows are conserved: every record read is either written or accounted as
// failed through the error strategy. Stages never drop or reorder rows;
// only explicitly configured filters remove records from the output.

// PipelineBuilder provides a fluent API for constructing pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]Transformer, 0),
			filters:      make([]Filter, 0),
			strategy:     FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Validate appends the validation stage: each record gets a per-field
// outcome annotation and an overall validity verdict.
func (pb *PipelineBuilder) Validate() *PipelineBuilder {
	return pb.Transform(validate.Rows())
}

// Clean appends the cleaning stage: trimming, date canonicalization,
// currency nulling, numeric conversion, merchant-category imputation.
func (pb *PipelineBuilder) Clean() *PipelineBuilder {
	return pb.Transform(clean.Rows())
}

// Enrich appends the transformation stage: typed conversion plus the
// derived feature columns.
func (pb *PipelineBuilder) Enrich() *PipelineBuilder {
	return pb.Transform(transform.Rows())
}

// Transform adds an arbitrary Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation using a plain function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// Where adds a filtering condition using a plain function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(core.FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the per-record error handling strategy.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// PipelineStats accounts for every record a run touched. RecordsRead equals
// RecordsWritten + RecordsFailed + RecordsFiltered after a clean run.
type PipelineStats struct {
	RecordsRead     int64
	RecordsWritten  int64
	RecordsFailed   int64
	RecordsFiltered int64
}

// Pipeline is a configured run over one transaction extract.
type Pipeline struct {
	transformers []Transformer
	filters      []Filter
	source       DataSource
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	stats        PipelineStats
}

// Execute runs the pipeline, processing all records from source to sink.
//
// Structural load failures abort before Execute is ever reached (the loader
// fails at construction). Per-record errors are routed through the
// configured strategy; a nil return from the handler continues the run with
// the record accounted as failed.
func (p *Pipeline) Execute(ctx context.Context) error {
	defer func() {
		if p.source != nil {
			p.source.Close()
		}
		if p.sink != nil {
			p.sink.Flush()
			p.sink.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := p.source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}

		p.stats.RecordsRead++

		transformed, err := p.applyTransformations(ctx, record)
		if err != nil {
			p.stats.RecordsFailed++
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}

		shouldInclude, err := p.applyFilters(ctx, transformed)
		if err != nil {
			p.stats.RecordsFailed++
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if !shouldInclude {
			p.stats.RecordsFiltered++
			continue
		}

		if err := p.sink.Write(ctx, transformed); err != nil {
			p.stats.RecordsFailed++
			if err := p.handleError(ctx, transformed, err); err != nil {
				return err
			}
			continue
		}
		p.stats.RecordsWritten++
	}

	return nil
}

// Stats returns the record accounting for the run so far.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

// applyFilters applies all configured filters to a record.
func (p *Pipeline) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations runs the stage chain over a record in sequence.
func (p *Pipeline) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError routes an error according to the pipeline's strategy.
func (p *Pipeline) handleError(ctx context.Context, record Record, err error) error {
	switch p.strategy {
	case FailFast:
		return err
	case SkipErrors, CollectErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}
