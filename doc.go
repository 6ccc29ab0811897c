// Package deltashare is a Go client for the Delta Sharing protocol.
//
// A sharing server exposes tables as lists of data files behind pre-signed
// URLs. deltashare lists what a profile can access, queries table metadata
// and versions, and reads every data file of a table concurrently into a
// single row set in file order.
//
// # Quick Start
//
// Load a table in one call:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/deltashare/pkg/sharing"
//	)
//
//	rows, err := sharing.LoadTable(context.Background(),
//	    "/path/to/open-datasets.share#delta_sharing.default.owid-covid-data",
//	    sharing.LoadOptions{})
//
// Or keep a client around:
//
//	client, err := sharing.NewClientFromFile("open-datasets.share", nil, logger)
//	defer client.Close()
//
//	tables, err := client.ListAllTables(ctx)
//	rows, err := client.Reader(tables[0]).WithLimit(100).Materialize(ctx)
//
// # Key Packages
//
//	pkg/sharing       - Client, ListAllTables fallback, LoadTable
//	pkg/reader        - Table reader: file listing, concurrent reads, limit
//	pkg/rest          - Endpoint client and page-token pagination
//	pkg/protocol      - Profile, wire records and the NDJSON line stream
//	pkg/clients       - HTTP transport: bearer auth, retries, rate limiting
//	pkg/columnar      - URL openers (http, s3, gs, file) and parquet decoding
//	pkg/config        - Unified configuration
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus metrics
//	pkg/observability - Tracing
//	internal/pipeline - Bounded, order-preserving fan-out
//
// # Errors
//
// Every failure is a *errors.Error carrying a type (validation, not_found,
// http_status, partial_fetch, cancelled, ...) and details such as the HTTP
// status, the server error code or the URL of the file that failed.
//
// # Configuration
//
// One ClientConfig drives every component:
//
//	type ClientConfig struct {
//	    Profile       string              // Credential file
//	    HTTP          HTTPConfig          // Timeouts, retries, rate limit, paging
//	    Reader        ReaderConfig        // Concurrency, batch size, file timeout
//	    Storage       StorageConfig       // Opt-in file, S3 and GCS openers
//	    Logging       logger.Config       // zap settings
//	    Observability ObservabilityConfig // Tracing
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax in YAML files.
// The deltashare command additionally reads DELTASHARE_* variables.
package deltashare
