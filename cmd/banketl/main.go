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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/banketl"
	"github.com/aaronlmathis/banketl/aggregate"
	"github.com/aaronlmathis/banketl/config"
	"github.com/aaronlmathis/banketl/filter"
	"github.com/aaronlmathis/banketl/quotes"
	"github.com/aaronlmathis/banketl/readers"
	"github.com/aaronlmathis/banketl/types"
	"github.com/aaronlmathis/banketl/validate"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "banketl",
	Short: "Banking transaction ETL pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [flags] <input>",
	Short: "Load, validate, clean, and transform a transaction extract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "banketl",
		})

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg.Input = args[0]

		ctx := cmd.Context()

		source, err := newSource(ctx, cfg, logger)
		if err != nil {
			return err
		}

		format, err := types.ParseFormat(cfg.Format)
		if err != nil {
			return err
		}

		sink, err := newSink(cfg, format)
		if err != nil {
			source.Close()
			return err
		}

		summary := aggregate.NewSummary()

		builder := banketl.NewPipeline().
			From(source).
			Validate().
			Clean().
			Enrich().
			Transform(summary.Observe())

		if cfg.ValidOnly {
			builder = builder.Filter(filter.Valid())
		}

		// Sinks get plain diagnostic columns, not the structured annotation.
		// The summary observer and the valid-only filter run first; both
		// need the annotation intact.
		pipeline, err := builder.
			Transform(validate.Flatten()).
			To(sink).
			WithErrorStrategy(banketl.SkipErrors).
			Build()
		if err != nil {
			return err
		}

		if err := pipeline.Execute(ctx); err != nil {
			return err
		}

		stats := pipeline.Stats()
		logger.Info("pipeline finished",
			"read", stats.RecordsRead,
			"written", stats.RecordsWritten,
			"failed", stats.RecordsFailed,
			"filtered", stats.RecordsFiltered)

		if cfg.Summary {
			report, err := summary.Result()
			if err != nil {
				return err
			}
			printSummary(report)
		}

		return nil
	},
}

var quotesCmd = &cobra.Command{
	Use:   "quotes [label ...]",
	Short: "Fetch motivational quotes concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "banketl"})

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		labels := args
		if len(labels) == 0 {
			for i := 0; i < cfg.Quotes.Count; i++ {
				labels = append(labels, fmt.Sprintf("quote-%d", i+1))
			}
		}

		opts := []quotes.Option{quotes.WithLogger(logger)}
		if cfg.Quotes.URL != "" {
			opts = append(opts, quotes.WithBaseURL(cfg.Quotes.URL))
		}
		opts = append(opts, quotes.WithRetryPolicy(quotes.RetryPolicy{
			Attempts: cfg.Quotes.Attempts,
			Delay:    cfg.Quotes.Delay,
			Timeout:  cfg.Quotes.Timeout,
		}))

		client := quotes.NewClient(opts...)
		results := client.FetchAll(cmd.Context(), labels)

		var failed int
		for _, result := range results {
			if result.Err != nil {
				failed++
				logger.Error("fetch failed", "label", result.Symbol, "err", result.Err)
				continue
			}
			fmt.Printf("[%s] %q (%s)\n", result.Symbol, result.Quote.Quote, result.Quote.Author)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d quote fetches failed", failed, len(results))
		}
		return nil
	},
}

// newSource builds the pipeline source from the input path. Paths with an
// s3:// scheme are fetched from S3, .jsonl files are read as line-delimited
// JSON staging extracts, and everything else is a local CSV file.
func newSource(ctx context.Context, cfg *config.Config, logger *log.Logger) (banketl.DataSource, error) {
	csvOpts := []readers.ReaderOptionCSV{readers.WithCSVLogger(logger)}

	if strings.HasPrefix(cfg.Input, "s3://") {
		s3Opts := []readers.ReaderOptionS3{readers.WithS3CSVOptions(csvOpts...)}
		if cfg.S3.Region != "" {
			s3Opts = append(s3Opts, readers.WithS3Region(cfg.S3.Region))
		}
		if cfg.S3.Profile != "" {
			s3Opts = append(s3Opts, readers.WithS3Profile(cfg.S3.Profile))
		}
		if cfg.S3.Endpoint != "" {
			s3Opts = append(s3Opts, readers.WithS3Endpoint(cfg.S3.Endpoint), readers.WithS3PathStyle(true))
		}
		return readers.NewS3TransactionReaderFromURI(ctx, cfg.Input, s3Opts...)
	}

	if strings.HasSuffix(cfg.Input, ".jsonl") {
		return readers.NewTransactionJSONReaderFromFile(cfg.Input)
	}

	return readers.NewTransactionCSVReaderFromFile(cfg.Input, csvOpts...)
}

// newSink builds the pipeline sink from the output settings.
func newSink(cfg *config.Config, format types.OutputFormat) (banketl.DataSink, error) {
	if format == types.FormatPostgres {
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres output requires a DSN")
		}
		return types.PostgresLocation{DSN: cfg.Postgres.DSN, Table: cfg.Postgres.Table}.NewSink(format)
	}

	if cfg.Output == "" {
		return nil, fmt.Errorf("output path is required for %s format", format)
	}
	return types.FileLocation{Path: cfg.Output}.NewSink(format)
}

// printSummary renders the aggregation report to stdout.
func printSummary(report banketl.Record) {
	fmt.Println("Summary:")
	for _, key := range []string{"rows", "valid_rows", "invalid_rows", "flagged_rows", "amount_total"} {
		if value, ok := report[key]; ok {
			fmt.Printf("  %-14s %v\n", key, value)
		}
	}
	if byCurrency, ok := report["by_currency"].(map[string]int64); ok {
		fmt.Println("  by currency:")
		for code, count := range byCurrency {
			fmt.Printf("    %-4s %d\n", code, count)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is banketl.yaml)")

	runCmd.Flags().StringP("output", "o", "", "Output path")
	runCmd.Flags().StringP("format", "f", "csv", "Output format: csv, json, parquet, postgres")
	runCmd.Flags().Bool("valid-only", false, "Write only records that passed validation")
	runCmd.Flags().Bool("summary", false, "Print an aggregation summary after the run")
	runCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN for postgres output")
	runCmd.Flags().String("postgres-table", "transactions", "PostgreSQL target table")
	runCmd.Flags().String("s3-region", "", "AWS region for s3:// inputs")
	runCmd.Flags().String("s3-profile", "", "AWS profile for s3:// inputs")
	runCmd.Flags().String("s3-endpoint", "", "Custom S3 endpoint for s3:// inputs")

	quotesCmd.Flags().Int("count", 5, "Number of quotes to fetch")
	quotesCmd.Flags().String("url", "", "Quote API endpoint")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(quotesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
