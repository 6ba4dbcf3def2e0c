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

// Package config loads pipeline settings from a config file, environment
// variables, and command-line flags, in increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings for a pipeline run.
type Config struct {
	Input     string `mapstructure:"input"`
	Output    string `mapstructure:"output"`
	Format    string `mapstructure:"format"`
	ValidOnly bool   `mapstructure:"valid_only"`
	Summary   bool   `mapstructure:"summary"`

	Postgres PostgresConfig `mapstructure:"postgres"`
	S3       S3Config       `mapstructure:"s3"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
}

// PostgresConfig holds warehouse connection settings.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// S3Config holds settings for extracts fetched from S3.
type S3Config struct {
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	Endpoint string `mapstructure:"endpoint"`
}

// QuotesConfig holds settings for the quote fetching client.
type QuotesConfig struct {
	URL      string        `mapstructure:"url"`
	Count    int           `mapstructure:"count"`
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Build loads configuration from cfgFile (or banketl.yaml in the working
// directory), BANKETL_* environment variables, and the given flag set.
// Flags win over environment, environment wins over file.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("format", "csv")
	v.SetDefault("postgres.table", "transactions")
	v.SetDefault("quotes.count", 5)
	v.SetDefault("quotes.attempts", 3)
	v.SetDefault("quotes.delay", time.Second)
	v.SetDefault("quotes.timeout", 10*time.Second)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("banketl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.banketl")
	}

	v.SetEnvPrefix("BANKETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		// Flag names use dashes; config keys use underscores and dots.
		bindings := map[string]string{
			"output":         "output",
			"format":         "format",
			"valid_only":     "valid-only",
			"summary":        "summary",
			"postgres.dsn":   "postgres-dsn",
			"postgres.table": "postgres-table",
			"s3.region":      "s3-region",
			"s3.profile":     "s3-profile",
			"s3.endpoint":    "s3-endpoint",
			"quotes.count":   "count",
			"quotes.url":     "url",
		}
		for key, name := range bindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
