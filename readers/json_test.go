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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSONLExtract = `{"transaction_id":"TXN000000001","transaction_date":"2024-03-15","customer_id":"CUST001","account_id":"ACC001","amount":15000.50,"currency":"IDR"}
{"transaction_id":"TXN000000002","transaction_date":"15/03/2024","customer_id":"CUST002","account_id":"ACC002","amount":"200","currency":"usd"}
`

func TestTransactionJSONReader_StreamsObjects(t *testing.T) {
	reader := NewTransactionJSONReader(newExtract(validJSONLExtract))
	defer reader.Close()

	ctx := context.Background()

	first, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TXN000000001", first["transaction_id"])
	assert.Equal(t, 15000.50, first["amount"])
	assert.Equal(t, "IDR", first["currency"])

	second, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TXN000000002", second["transaction_id"])
	assert.Equal(t, "200", second["amount"])

	_, err = reader.Read(ctx)
	assert.Equal(t, io.EOF, err)

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.RowsLoaded)
	assert.Equal(t, int64(2), stats.RecordsRead)
}

func TestTransactionJSONReader_MissingMandatoryKeys(t *testing.T) {
	extract := `{"transaction_id":"TXN000000001","transaction_date":"2024-03-15","amount":100,"currency":"IDR"}
`
	reader := NewTransactionJSONReader(newExtract(extract))
	defer reader.Close()

	_, err := reader.Read(context.Background())
	require.Error(t, err)

	var missingErr *MissingMandatoryColumnsError
	require.ErrorAs(t, err, &missingErr)
	assert.ElementsMatch(t, []string{"customer_id", "account_id"}, missingErr.Missing)

	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	assert.Equal(t, 1, loaderErr.Line)
}

func TestTransactionJSONReader_NullMandatoryKeyIsPresent(t *testing.T) {
	extract := `{"transaction_id":"TXN000000001","transaction_date":"2024-03-15","customer_id":null,"account_id":"ACC001","amount":100,"currency":"IDR"}
`
	reader := NewTransactionJSONReader(newExtract(extract))
	defer reader.Close()

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, record, "customer_id")
	assert.Nil(t, record["customer_id"])
}

func TestTransactionJSONReader_EmptyLine(t *testing.T) {
	extract := `{"transaction_id":"TXN000000001","transaction_date":"2024-03-15","customer_id":"CUST001","account_id":"ACC001","amount":100,"currency":"IDR"}

{"transaction_id":"TXN000000002","transaction_date":"2024-03-15","customer_id":"CUST002","account_id":"ACC002","amount":200,"currency":"USD"}
`
	reader := NewTransactionJSONReader(newExtract(extract))
	defer reader.Close()

	ctx := context.Background()

	_, err := reader.Read(ctx)
	require.NoError(t, err)

	_, err = reader.Read(ctx)
	require.Error(t, err)

	var emptyErr *EmptyRowError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 2, emptyErr.Line)
}

func TestTransactionJSONReader_MalformedLine(t *testing.T) {
	extract := `{"transaction_id":"TXN000000001","transaction_date":"2024-03-15","customer_id":"CUST001","account_id":"ACC001","amount":100,"currency":"IDR"}
{not json}
`
	reader := NewTransactionJSONReader(newExtract(extract))
	defer reader.Close()

	ctx := context.Background()

	_, err := reader.Read(ctx)
	require.NoError(t, err)

	_, err = reader.Read(ctx)
	require.Error(t, err)

	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	assert.Equal(t, "decode", loaderErr.Op)
	assert.Equal(t, 2, loaderErr.Line)
}

func TestTransactionJSONReader_ContextCancellation(t *testing.T) {
	reader := NewTransactionJSONReader(newExtract(validJSONLExtract))
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Read(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTransactionJSONReaderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staged.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(validJSONLExtract), 0o644))

	reader, err := NewTransactionJSONReaderFromFile(path)
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TXN000000001", record["transaction_id"])
}

func TestNewTransactionJSONReaderFromFile_Missing(t *testing.T) {
	_, err := NewTransactionJSONReaderFromFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.Error(t, err)

	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	assert.Equal(t, "open", loaderErr.Op)
}
