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

package readers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/banketl/core"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "parse_uri", "get_object", "read")
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderOptions configures how the extract object is fetched.
type S3ReaderOptions struct {
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	CSVOptions     []ReaderOptionCSV // Passed through to the transaction CSV reader
}

// ReaderOptionS3 represents a configuration function for S3TransactionReader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

// WithS3CSVOptions forwards options to the underlying transaction CSV reader.
func WithS3CSVOptions(options ...ReaderOptionCSV) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.CSVOptions = append(opts.CSVOptions, options...)
	}
}

// ParseS3URI splits an s3://bucket/key URI into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	if trimmed == uri {
		return "", "", &S3ReaderError{Op: "parse_uri", Err: fmt.Errorf("not an s3 uri: %s", uri)}
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &S3ReaderError{Op: "parse_uri", Err: fmt.Errorf("expected s3://bucket/key, got %s", uri)}
	}
	return parts[0], parts[1], nil
}

// S3TransactionReader implements core.DataSource for a transaction extract
// stored as a CSV object in Amazon S3. The whole object is validated at
// construction, so a malformed extract fails before any record is emitted.
type S3TransactionReader struct {
	bucket string
	key    string
	inner  *TransactionCSVReader
}

// NewS3TransactionReader fetches the object at s3://bucket/key and wraps it
// in a transaction CSV reader.
func NewS3TransactionReader(ctx context.Context, bucket, key string, options ...ReaderOptionS3) (*S3TransactionReader, error) {
	opts := S3ReaderOptions{}
	for _, option := range options {
		option(&opts)
	}

	if bucket == "" || key == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket and key are required")}
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "get_object", Err: err}
	}

	// The CSV reader takes ownership of the body and closes it on failure.
	inner, err := NewTransactionCSVReader(result.Body, opts.CSVOptions...)
	if err != nil {
		return nil, &S3ReaderError{Op: "read", Err: err}
	}

	return &S3TransactionReader{
		bucket: bucket,
		key:    key,
		inner:  inner,
	}, nil
}

// NewS3TransactionReaderFromURI is a convenience wrapper for s3://bucket/key URIs.
func NewS3TransactionReaderFromURI(ctx context.Context, uri string, options ...ReaderOptionS3) (*S3TransactionReader, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return NewS3TransactionReader(ctx, bucket, key, options...)
}

// Read implements the core.DataSource interface
func (s *S3TransactionReader) Read(ctx context.Context) (core.Record, error) {
	return s.inner.Read(ctx)
}

// Close implements the core.DataSource interface
func (s *S3TransactionReader) Close() error {
	return s.inner.Close()
}

// Headers returns the column headers of the fetched extract.
func (s *S3TransactionReader) Headers() []string {
	return s.inner.Headers()
}

// Stats returns reader performance statistics.
func (s *S3TransactionReader) Stats() TransactionCSVReaderStats {
	return s.inner.Stats()
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, opts S3ReaderOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}
