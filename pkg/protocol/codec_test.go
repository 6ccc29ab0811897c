package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
)

func TestDecodeShare(t *testing.T) {
	share, err := DecodeShare([]byte(`{"name": "share_name"}`))
	require.NoError(t, err)

	expected, err := NewShare("share_name")
	require.NoError(t, err)
	assert.Equal(t, expected, share)
	assert.Equal(t, "Share(name=share_name)", share.String())
}

func TestDecodeShareRejectsEmptyName(t *testing.T) {
	_, err := DecodeShare([]byte(`{"name": ""}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestDecodeSchema(t *testing.T) {
	schema, err := DecodeSchema([]byte(`{"name": "schema_name", "share": "share_name"}`))
	require.NoError(t, err)
	assert.Equal(t, NewSchema("schema_name", "share_name"), schema)
}

func TestDecodeTable(t *testing.T) {
	table, err := DecodeTable([]byte(`{"name": "table_name", "share": "share_name", "schema": "schema_name"}`))
	require.NoError(t, err)

	expected, err := NewTable("table_name", "share_name", "schema_name")
	require.NoError(t, err)
	assert.Equal(t, expected, table)
	assert.Equal(t, "share_name.schema_name.table_name", table.FullName())

	_, err = DecodeTable([]byte(`{"name": "table_name", "share": "share_name"}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestDecodeProtocol(t *testing.T) {
	p, err := DecodeProtocol([]byte(`{"minReaderVersion": 1}`))
	require.NoError(t, err)
	assert.Equal(t, Protocol{MinReaderVersion: 1}, p)

	_, err = DecodeProtocol([]byte(`{"minReaderVersion": 100}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedVersion))

	_, err = NewProtocol(2)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedVersion))
}

func TestDecodeFormat(t *testing.T) {
	f, err := DecodeFormat([]byte(`{"provider": "parquet", "options": {}}`))
	require.NoError(t, err)
	assert.Equal(t, NewFormat("parquet", map[string]string{}), f)

	f, err = DecodeFormat([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultFormatProvider, f.Provider)
}

func TestDecodeMetadata(t *testing.T) {
	m, err := DecodeMetadata([]byte(`{
		"id": "testId",
		"name": "test",
		"description": "test",
		"format": {"provider": "parquet", "options": {}},
		"schemaString": "{}",
		"partitionColumns": []
	}`))
	require.NoError(t, err)

	assert.Equal(t, Metadata{
		ID:               "testId",
		Name:             "test",
		Description:      "test",
		Format:           NewFormat("parquet", map[string]string{}),
		SchemaString:     "{}",
		PartitionColumns: []string{},
	}, m)
}

func TestDecodeAddFile(t *testing.T) {
	f, err := DecodeAddFile([]byte(`{"url":"https://h/f.parquet","id":"a","partitionValues":{"date":"2021-01-01"},"size":10,"stats":"{\"numRecords\":1}"}`))
	require.NoError(t, err)
	assert.Equal(t, AddFile{
		URL:             "https://h/f.parquet",
		ID:              "a",
		PartitionValues: map[string]string{"date": "2021-01-01"},
		Size:            10,
		Stats:           `{"numRecords":1}`,
	}, f)

	_, err = DecodeAddFile([]byte(`{"id":"a","size":10}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestDecodeMalformedCarriesRecord(t *testing.T) {
	_, err := DecodeTable([]byte(`{"name": `))
	require.Error(t, err)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.ErrorTypeMalformedRecord, e.Type)
	record, ok := e.Detail(errors.DetailRecord)
	assert.True(t, ok)
	assert.Equal(t, `{"name": `, record)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		record string
		decode func([]byte) (interface{}, error)
	}{
		{"share", `{"name":"s"}`, func(b []byte) (interface{}, error) { return DecodeShare(b) }},
		{"schema", `{"name":"sc","share":"s"}`, func(b []byte) (interface{}, error) { return DecodeSchema(b) }},
		{"table", `{"name":"t","share":"s","schema":"sc"}`, func(b []byte) (interface{}, error) { return DecodeTable(b) }},
		{"protocol", `{"minReaderVersion":1}`, func(b []byte) (interface{}, error) { return DecodeProtocol(b) }},
		{"format", `{"provider":"parquet","options":{"k":"v"}}`, func(b []byte) (interface{}, error) { return DecodeFormat(b) }},
		{"metadata", `{"id":"x","name":"n","description":"d","format":{"provider":"parquet","options":{}},"schemaString":"{}","partitionColumns":["date"]}`,
			func(b []byte) (interface{}, error) { return DecodeMetadata(b) }},
		{"file", `{"url":"u1","id":"a","partitionValues":{"date":"2021"},"size":10,"stats":"{}"}`,
			func(b []byte) (interface{}, error) { return DecodeAddFile(b) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.decode([]byte(tt.record))
			require.NoError(t, err)

			encoded, err := json.Marshal(first)
			require.NoError(t, err)
			assert.JSONEq(t, tt.record, string(encoded))

			second, err := tt.decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}
