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
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/banketl/core"
)

// This file implements a MongoDB source for raw transactions staged in a
// collection. Documents come out as the same raw-valued records the CSV
// loader produces, so the downstream stages do not care where an extract
// came from.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead  int64         // Total documents read
	ReadDuration time.Duration // Total time spent reading
	LastReadTime time.Time     // Time of last read
	ErrorCount   int64         // Number of errors encountered
}

// MongoReaderOptions configures the MongoDB transaction reader
type MongoReaderOptions struct {
	URI          string        // MongoDB connection URI
	Database     string        // Database name
	Collection   string        // Staging collection name
	Filter       bson.M        // Query filter
	Sort         bson.M        // Sort specification
	BatchSize    int32         // Batch size for cursor
	Limit        int64         // Maximum number of documents to read
	Timeout      time.Duration // Connect timeout
	AuthDatabase string        // Authentication database
	Username     string        // Authentication username
	Password     string        // Authentication password
	KeepObjectID bool          // Keep the _id field (hex string) in records
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.URI = uri
	}
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Filter = filter
	}
}

func WithMongoSort(sort bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = sort
	}
}

func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Limit = limit
	}
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.BatchSize = batchSize
	}
}

func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoObjectID(keep bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.KeepObjectID = keep
	}
}

// MongoTransactionReader implements core.DataSource for staged transactions
// in a MongoDB collection.
type MongoTransactionReader struct {
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	opts       *MongoReaderOptions
	stats      MongoReaderStats
	connected  bool
}

// NewMongoTransactionReader creates a MongoDB reader with configurable options.
// The connection is established lazily on the first Read.
func NewMongoTransactionReader(opts ...ReaderOptionMongo) (*MongoTransactionReader, error) {
	cfg := &MongoReaderOptions{
		URI:        "mongodb://localhost:27017",
		Collection: "staged_transactions",
		BatchSize:  1000,
		Timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if cfg.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}

	return &MongoTransactionReader{opts: cfg}, nil
}

// Connect establishes the connection to MongoDB
func (mr *MongoTransactionReader) Connect(ctx context.Context) error {
	if mr.connected {
		return nil
	}

	clientOpts := options.Client().ApplyURI(mr.opts.URI)
	if mr.opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(mr.opts.Timeout)
	}
	if mr.opts.Username != "" && mr.opts.Password != "" {
		auth := options.Credential{
			Username:   mr.opts.Username,
			Password:   mr.opts.Password,
			AuthSource: mr.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = mr.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoReaderError{Op: "ping", Err: err}
	}

	mr.client = client
	mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	mr.connected = true

	return nil
}

// Read implements the core.DataSource interface
func (mr *MongoTransactionReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	if !mr.connected {
		if err := mr.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return nil, &MongoReaderError{Op: "query", Collection: mr.opts.Collection, Err: err}
		}
	}

	select {
	case <-ctx.Done():
		return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: ctx.Err()}
	default:
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			mr.stats.ErrorCount++
			return nil, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		mr.stats.ErrorCount++
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	mr.stats.RecordsRead++
	return mr.convertDocument(doc), nil
}

// Close implements the core.DataSource interface
func (mr *MongoTransactionReader) Close() error {
	ctx := context.Background()

	var firstErr error
	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			firstErr = err
		}
		mr.cursor = nil
	}
	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		mr.client = nil
	}
	mr.connected = false

	if firstErr != nil {
		return &MongoReaderError{Op: "close", Err: firstErr}
	}
	return nil
}

// Stats returns MongoDB reader performance statistics
func (mr *MongoTransactionReader) Stats() MongoReaderStats {
	return mr.stats
}

// initializeCursor executes the find against the staging collection
func (mr *MongoTransactionReader) initializeCursor(ctx context.Context) error {
	findOpts := options.Find()
	if mr.opts.BatchSize > 0 {
		findOpts.SetBatchSize(mr.opts.BatchSize)
	}
	if mr.opts.Limit > 0 {
		findOpts.SetLimit(mr.opts.Limit)
	}
	if mr.opts.Sort != nil {
		findOpts.SetSort(mr.opts.Sort)
	}

	filter := mr.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}

	cursor, err := mr.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}

	mr.cursor = cursor
	return nil
}

// convertDocument flattens a staged document into a core.Record. The _id
// field is dropped unless KeepObjectID is set; staged values keep whatever
// type they were stored with and the cleaning stage coerces them.
func (mr *MongoTransactionReader) convertDocument(doc bson.M) core.Record {
	record := make(core.Record, len(doc))

	for key, value := range doc {
		if key == "_id" {
			if mr.opts.KeepObjectID {
				if oid, ok := value.(primitive.ObjectID); ok {
					record["_id"] = oid.Hex()
				}
			}
			continue
		}
		record[key] = convertBSONValue(value)
	}

	return record
}

// convertBSONValue maps BSON values to the Go types the pipeline expects
func convertBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time()
	case primitive.Decimal128:
		return v.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case bson.M:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = convertBSONValue(val)
		}
		return result
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertBSONValue(val)
		}
		return result
	default:
		return v
	}
}

// NewMongoTransactionReaderFromURI creates a staging reader from a URI.
func NewMongoTransactionReaderFromURI(uri, database, collection string) (*MongoTransactionReader, error) {
	return NewMongoTransactionReader(
		WithMongoURI(uri),
		WithMongoDB(database),
		WithMongoCollection(collection),
	)
}
