// Package protocol defines the Delta Sharing wire objects and their codecs.
//
// Every object is an immutable value decoded fresh from a server response.
// Decoding enforces the reader-compatibility constraints of this client:
// a profile or table that declares a newer version than supported fails with
// an unsupported_version error, and anything that is not valid JSON, or
// violates an identity invariant, fails with a malformed_record error that
// carries the offending text.
package protocol

import (
	"fmt"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
)

const (
	// CurrentShareCredentialsVersion is the newest profile format this client reads
	CurrentShareCredentialsVersion = 1
	// CurrentReaderVersion is the newest table protocol this client reads
	CurrentReaderVersion = 1
	// DefaultFormatProvider is used when a table does not declare a file format
	DefaultFormatProvider = "parquet"
)

// Share is a named collection of schemas
type Share struct {
	Name string `json:"name"`
}

// Schema is a named collection of tables within a share
type Schema struct {
	Name  string `json:"name"`
	Share string `json:"share"`
}

// Table is a queryable dataset
type Table struct {
	Name   string `json:"name"`
	Share  string `json:"share"`
	Schema string `json:"schema"`
}

// Protocol carries the minimum reader version a table requires
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
}

// Format describes the physical format of a table's data files
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options"`
}

// Metadata describes a table's schema and partitioning
type Metadata struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	Description      string   `json:"description,omitempty"`
	Format           Format   `json:"format"`
	SchemaString     string   `json:"schemaString"`
	PartitionColumns []string `json:"partitionColumns"`
}

// AddFile points at one data file backing a table's current snapshot
type AddFile struct {
	URL             string            `json:"url"`
	ID              string            `json:"id"`
	PartitionValues map[string]string `json:"partitionValues"`
	Size            int64             `json:"size"`
	Stats           string            `json:"stats,omitempty"`
}

// NewShare creates a share, rejecting an empty name
func NewShare(name string) (Share, error) {
	s := Share{Name: name}
	return s, s.Validate()
}

// NewSchema creates a schema reference
func NewSchema(name, share string) Schema {
	return Schema{Name: name, Share: share}
}

// NewTable creates a table reference; all three parts are required
func NewTable(name, share, schema string) (Table, error) {
	t := Table{Name: name, Share: share, Schema: schema}
	return t, t.Validate()
}

// NewProtocol creates a protocol marker, failing if the version is too new
func NewProtocol(minReaderVersion int) (Protocol, error) {
	p := Protocol{MinReaderVersion: minReaderVersion}
	return p, p.Validate()
}

// NewFormat creates a format descriptor; an empty provider means parquet
func NewFormat(provider string, options map[string]string) Format {
	if provider == "" {
		provider = DefaultFormatProvider
	}
	return Format{Provider: provider, Options: options}
}

// Validate checks the share name
func (s Share) Validate() error {
	if s.Name == "" {
		return errors.New(errors.ErrorTypeMalformedRecord, "share name must not be empty")
	}
	return nil
}

func (s Share) String() string {
	return fmt.Sprintf("Share(name=%s)", s.Name)
}

func (s Schema) String() string {
	return fmt.Sprintf("Schema(name=%s, share=%s)", s.Name, s.Share)
}

// Validate checks that the table is fully qualified
func (t Table) Validate() error {
	if t.Name == "" || t.Share == "" || t.Schema == "" {
		return errors.New(errors.ErrorTypeMalformedRecord, "table name, share and schema must not be empty").
			WithDetail("table", t.FullName())
	}
	return nil
}

// FullName returns share.schema.table
func (t Table) FullName() string {
	return t.Share + "." + t.Schema + "." + t.Name
}

func (t Table) String() string {
	return fmt.Sprintf("Table(name=%s, share=%s, schema=%s)", t.Name, t.Share, t.Schema)
}

// Validate checks the protocol against the supported reader version
func (p Protocol) Validate() error {
	if p.MinReaderVersion > CurrentReaderVersion {
		return errors.Newf(errors.ErrorTypeUnsupportedVersion,
			"the table requires a newer version %d to read, but the current release supports version %d and below",
			p.MinReaderVersion, CurrentReaderVersion).
			WithDetail("min_reader_version", p.MinReaderVersion)
	}
	return nil
}

func (p Protocol) String() string {
	return fmt.Sprintf("Protocol(minReaderVersion=%d)", p.MinReaderVersion)
}

// Validate checks the file pointer
func (f AddFile) Validate() error {
	if f.URL == "" {
		return errors.New(errors.ErrorTypeMalformedRecord, "file url must not be empty").
			WithDetail("file_id", f.ID)
	}
	return nil
}

// DecodeShare decodes a share record
func DecodeShare(data []byte) (Share, error) {
	var s Share
	if err := decode(data, "share", &s); err != nil {
		return Share{}, err
	}
	return s, withRecord(s.Validate(), data)
}

// DecodeSchema decodes a schema record
func DecodeSchema(data []byte) (Schema, error) {
	var s Schema
	if err := decode(data, "schema", &s); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// DecodeTable decodes a table record
func DecodeTable(data []byte) (Table, error) {
	var t Table
	if err := decode(data, "table", &t); err != nil {
		return Table{}, err
	}
	return t, withRecord(t.Validate(), data)
}

// DecodeProtocol decodes a protocol record
func DecodeProtocol(data []byte) (Protocol, error) {
	var p Protocol
	if err := decode(data, "protocol", &p); err != nil {
		return Protocol{}, err
	}
	return p, p.Validate()
}

// DecodeFormat decodes a format record
func DecodeFormat(data []byte) (Format, error) {
	var f Format
	if err := decode(data, "format", &f); err != nil {
		return Format{}, err
	}
	if f.Provider == "" {
		f.Provider = DefaultFormatProvider
	}
	return f, nil
}

// DecodeMetadata decodes a metaData record
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := decode(data, "metaData", &m); err != nil {
		return Metadata{}, err
	}
	if m.Format.Provider == "" {
		m.Format.Provider = DefaultFormatProvider
	}
	return m, nil
}

// DecodeAddFile decodes a file record
func DecodeAddFile(data []byte) (AddFile, error) {
	var f AddFile
	if err := decode(data, "file", &f); err != nil {
		return AddFile{}, err
	}
	return f, withRecord(f.Validate(), data)
}

func decode(data []byte, kind string, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to decode "+kind).
			WithDetail(errors.DetailRecord, string(data))
	}
	return nil
}

func withRecord(err error, data []byte) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return e.WithDetail(errors.DetailRecord, string(data))
	}
	return err
}
