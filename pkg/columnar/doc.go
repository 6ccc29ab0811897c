// Package columnar turns the data files of a shared table into rows.
//
// # Overview
//
// A query response lists one AddFile per data file. FileReader decodes a
// single file into a slice of models.Row; ParquetReader is the only
// implementation and uses arrow-go's parquet reader.
//
// # Fetching
//
// File bytes are obtained through an Opener chosen by URL scheme:
//
//   - http, https: pre-signed URLs fetched without the sharing bearer token
//   - s3: objects downloaded with the aws-sdk-go-v2 transfer manager
//   - gs: objects read with the Google Cloud Storage client
//   - file: local files
//
// The server chooses the URLs, so NewStorageRouter only registers s3, gs and
// file when config.StorageConfig enables them. Bare paths and URLs that do
// not parse are refused with a capability error.
//
// Router dispatches on the scheme and records fetch outcomes and byte counts
// in pkg/metrics.
//
// # Values
//
// Arrow values are converted to plain Go values: integers keep their width,
// dates and timestamps become UTC time.Time, decimals become their exact
// string form, lists become []interface{} and structs and maps become
// map[string]interface{}. Nulls are nil.
package columnar
