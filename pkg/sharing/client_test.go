package sharing

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/deltashare/pkg/clients"
	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
	"github.com/ajitpratap0/deltashare/pkg/models"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
	"github.com/ajitpratap0/deltashare/pkg/rest"
	"github.com/ajitpratap0/deltashare/pkg/testutil"
)

var idSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// SharingClientTestSuite runs the client against an in-process sharing server
type SharingClientTestSuite struct {
	suite.Suite
	srv    *testutil.SharingServer
	cfg    *config.ClientConfig
	client *Client
	ctx    context.Context
}

func TestSharingClientSuite(t *testing.T) {
	suite.Run(t, new(SharingClientTestSuite))
}

func (s *SharingClientTestSuite) SetupTest() {
	s.ctx = testutil.TestContext(s.T())
	s.srv = testutil.NewSharingServer(s.T())
	s.srv.AddShare("share1", "share2", "share3")
	s.srv.AddSchema("share1", "default")
	s.srv.AddSchema("share2", "default", "sales")
	s.srv.AddSchema("share3", "default")
	s.srv.AddTable(tbl("t1", "share1", "default"), testutil.TableFixture{})
	s.srv.AddTable(tbl("t2", "share2", "default"), testutil.TableFixture{})
	s.srv.AddTable(tbl("orders", "share2", "sales"), testutil.TableFixture{})
	s.srv.AddTable(tbl("t3", "share3", "default"), testutil.TableFixture{})

	s.cfg = config.Default()
	s.cfg.HTTP.NumRetries = 0
	s.client = s.newClient(testutil.TestLogger(s.T()))
}

func (s *SharingClientTestSuite) newClient(log *zap.Logger) *Client {
	c, err := NewClient(s.srv.Profile(s.T()), s.cfg, log)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

func countSuffix(srv *testutil.SharingServer, suffix string) int {
	n := 0
	for _, r := range srv.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

func tbl(name, share, schema string) protocol.Table {
	return protocol.Table{Name: name, Share: share, Schema: schema}
}

func (s *SharingClientTestSuite) allTables() []protocol.Table {
	return []protocol.Table{
		tbl("t1", "share1", "default"),
		tbl("t2", "share2", "default"),
		tbl("orders", "share2", "sales"),
		tbl("t3", "share3", "default"),
	}
}

func (s *SharingClientTestSuite) TestListShares() {
	s.srv.PageSize = 2
	shares, err := s.client.ListShares(s.ctx)
	s.Require().NoError(err)
	s.Equal([]protocol.Share{{Name: "share1"}, {Name: "share2"}, {Name: "share3"}}, shares)
	s.Equal(2, s.srv.CountRequests("/shares"))
}

func (s *SharingClientTestSuite) TestListSchemasAndTables() {
	schemas, err := s.client.ListSchemas(s.ctx, protocol.Share{Name: "share2"})
	s.Require().NoError(err)
	s.Equal([]protocol.Schema{{Name: "default", Share: "share2"}, {Name: "sales", Share: "share2"}}, schemas)

	tables, err := s.client.ListTables(s.ctx, schemas[1])
	s.Require().NoError(err)
	s.Equal([]protocol.Table{tbl("orders", "share2", "sales")}, tables)

	tables, err = s.client.ListAllTablesInShare(s.ctx, protocol.Share{Name: "share2"})
	s.Require().NoError(err)
	s.Equal([]protocol.Table{tbl("t2", "share2", "default"), tbl("orders", "share2", "sales")}, tables)
}

func (s *SharingClientTestSuite) TestListAllTables() {
	before := promtest.ToFloat64(metrics.AllTablesFallbacks)

	tables, err := s.client.ListAllTables(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.allTables(), tables)
	s.Equal(3, s.srv.CountRequests("/all-tables"))
	s.Zero(s.srv.CountRequests("/schemas"))
	s.Equal(before, promtest.ToFloat64(metrics.AllTablesFallbacks))
}

func (s *SharingClientTestSuite) TestListAllTablesFallsBackOnce() {
	core, logs := observer.New(zapcore.WarnLevel)
	client := s.newClient(zap.New(core))
	s.srv.DisableAllTables("share2")
	before := promtest.ToFloat64(metrics.AllTablesFallbacks)

	tables, err := client.ListAllTables(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.allTables(), tables, "share1 results from all-tables are discarded, not duplicated")

	// share1 succeeded, share2 404'd, share3 was never asked
	s.Equal(2, s.srv.CountRequests("/all-tables"))
	for _, r := range s.srv.Requests() {
		s.NotContains(r.Path, "share3/all-tables")
	}
	s.Equal(3, countSuffix(s.srv, "/schemas"))
	s.Equal(4, countSuffix(s.srv, "/tables"))
	s.Equal(before+1, promtest.ToFloat64(metrics.AllTablesFallbacks))

	warnings := logs.FilterMessageSnippet("all-tables endpoint not supported").All()
	s.Require().Len(warnings, 1)
	s.Equal("share2", warnings[0].ContextMap()["share"])
}

func (s *SharingClientTestSuite) TestListAllTablesFallbackOnFirstShare() {
	s.srv.AllTablesUnsupported = true

	tables, err := s.client.ListAllTables(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.allTables(), tables)
	s.Equal(1, s.srv.CountRequests("/all-tables"))
}

func (s *SharingClientTestSuite) TestListAllTablesPropagatesOtherErrors() {
	transport, err := clients.NewHTTPTransport(s.srv.Profile(s.T()), s.cfg.HTTP, nil)
	s.Require().NoError(err)
	failing := clients.TransportFunc(func(ctx context.Context, req *clients.Request) (*clients.Response, error) {
		if strings.HasSuffix(req.Path, "/all-tables") && strings.Contains(req.Path, "share2") {
			return &clients.Response{StatusCode: http.StatusInternalServerError, Body: []byte(`{"errorCode":"INTERNAL_ERROR","message":"boom"}`)}, nil
		}
		return transport.Do(ctx, req)
	})
	client := NewClientWith(rest.NewClient(failing, nil), nil, s.cfg.Reader, nil)

	_, err = client.ListAllTables(s.ctx)
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeHTTPStatus))
	code, _ := errors.StatusCode(err)
	s.Equal(http.StatusInternalServerError, code)
	s.Zero(s.srv.CountRequests("/schemas"), "no fallback on non-404 errors")
}

func (s *SharingClientTestSuite) TestListAllTablesFallbackErrorPropagates() {
	transport, err := clients.NewHTTPTransport(s.srv.Profile(s.T()), s.cfg.HTTP, nil)
	s.Require().NoError(err)
	notFound := clients.TransportFunc(func(ctx context.Context, req *clients.Request) (*clients.Response, error) {
		if strings.HasSuffix(req.Path, "/all-tables") || strings.HasSuffix(req.Path, "share3/schemas") {
			return &clients.Response{StatusCode: http.StatusNotFound, Body: []byte(`{"errorCode":"RESOURCE_DOES_NOT_EXIST","message":"gone"}`)}, nil
		}
		return transport.Do(ctx, req)
	})
	client := NewClientWith(rest.NewClient(notFound, nil), nil, s.cfg.Reader, nil)

	_, err = client.ListAllTables(s.ctx)
	s.Require().Error(err)
	s.True(errors.IsNotFound(err), "a 404 during the fallback is not swallowed")
}

func (s *SharingClientTestSuite) TestQueryTableMetadataAndVersion() {
	s.srv.AddTable(tbl("events", "share1", "default"), testutil.TableFixture{
		Protocol: protocol.Protocol{MinReaderVersion: 1},
		Metadata: protocol.Metadata{ID: "m1", Format: protocol.Format{Provider: "parquet"}, SchemaString: "{}"},
		Version:  12,
	})

	md, err := s.client.QueryTableMetadata(s.ctx, tbl("events", "share1", "default"))
	s.Require().NoError(err)
	s.Equal("m1", md.Metadata.ID)

	v, err := s.client.QueryTableVersion(s.ctx, tbl("events", "share1", "default"))
	s.Require().NoError(err)
	s.Equal(int64(12), v)
}

func (s *SharingClientTestSuite) TestQueryTableMetadataUnsupportedVersion() {
	s.srv.AddTable(tbl("future", "share1", "default"), testutil.TableFixture{
		Protocol: protocol.Protocol{MinReaderVersion: 99},
		Metadata: protocol.Metadata{ID: "m1", SchemaString: "{}"},
	})

	_, err := s.client.QueryTableMetadata(s.ctx, tbl("future", "share1", "default"))
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeUnsupportedVersion))
}

func (s *SharingClientTestSuite) addParquetTable(name string, fileRows ...[]int64) protocol.Table {
	t := tbl(name, "share1", "default")
	var files []protocol.AddFile
	for i, ids := range fileRows {
		rows := make([][]interface{}, len(ids))
		for j, id := range ids {
			rows[j] = []interface{}{id}
		}
		fileName := name + "-" + string(rune('a'+i)) + ".parquet"
		url := s.srv.AddFile(fileName, testutil.ParquetBytes(s.T(), idSchema, rows))
		files = append(files, protocol.AddFile{URL: url + "?X-Amz-Signature=sig", ID: fileName, Size: 1})
	}
	s.srv.AddTable(t, testutil.TableFixture{
		Protocol: protocol.Protocol{MinReaderVersion: 1},
		Metadata: protocol.Metadata{
			ID:           name,
			Format:       protocol.Format{Provider: "parquet"},
			SchemaString: `{"type":"struct","fields":[{"name":"id","type":"long","nullable":true,"metadata":{}}]}`,
		},
		Files: files,
	})
	return t
}

func ids(rs *models.RowSet) []interface{} {
	out := make([]interface{}, 0, rs.Len())
	for _, row := range rs.Rows {
		out = append(out, row["id"])
	}
	return out
}

func (s *SharingClientTestSuite) TestReaderMaterializes() {
	t := s.addParquetTable("numbers", []int64{1, 2, 3}, []int64{4}, []int64{5, 6})

	rs, err := s.client.Reader(t).Materialize(s.ctx)
	s.Require().NoError(err)
	got := ids(rs)
	s.Equal([]interface{}{int64(1), int64(2), int64(3), int64(4), int64(5), int64(6)}, got)

	for _, r := range s.srv.Requests() {
		if strings.HasPrefix(r.Path, "/files/") {
			s.Empty(r.Authorization, "file downloads carry no bearer token")
		}
	}

	rs, err = s.client.Reader(t).WithLimit(4).WithPredicateHints([]string{"id > 0"}).Materialize(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, rs.Len())
	s.Equal(int64(4), rs.Rows[3]["id"])
}

func (s *SharingClientTestSuite) TestReaderPartialFetch() {
	t := s.addParquetTable("broken", []int64{1}, []int64{2})
	s.srv.FailFile("broken-b.parquet", 100)

	_, err := s.client.Reader(t).Materialize(s.ctx)
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypePartialFetch))

	var e *errors.Error
	s.Require().True(errors.As(err, &e))
	u, _ := e.Detail(errors.DetailURL)
	s.Equal(s.srv.URL+"/files/broken-b.parquet", u)
}

func (s *SharingClientTestSuite) TestReaderRefusesLocalFileURLs() {
	path := testutil.WriteParquet(s.T(), s.T().TempDir(), "private.parquet", idSchema, [][]interface{}{{int64(42)}})
	t := tbl("sneaky", "share1", "default")
	s.srv.AddTable(t, testutil.TableFixture{
		Protocol: protocol.Protocol{MinReaderVersion: 1},
		Metadata: protocol.Metadata{ID: "sneaky", Format: protocol.Format{Provider: "parquet"}},
		Files: []protocol.AddFile{
			{URL: path, ID: "bare"},
			{URL: "file://" + filepath.ToSlash(path), ID: "file"},
		},
	})

	rs, err := s.client.Reader(t).Materialize(s.ctx)
	s.Nil(rs)
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypePartialFetch))

	var e *errors.Error
	s.Require().True(errors.As(err, &e))
	s.True(errors.IsType(e.Cause, errors.ErrorTypeCapability))
}

func (s *SharingClientTestSuite) TestReaderRetriesFileDownloads() {
	s.cfg.HTTP.NumRetries = 2
	s.cfg.HTTP.RetryWaitMin = time.Millisecond
	s.cfg.HTTP.RetryWaitMax = 2 * time.Millisecond
	client := s.newClient(nil)

	t := s.addParquetTable("flaky", []int64{7})
	s.srv.FailFile("flaky-a.parquet", 1)

	rs, err := client.Reader(t).Materialize(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, rs.Len())
	s.Equal(2, s.srv.CountRequests("/files/flaky-a.parquet"))
}

func (s *SharingClientTestSuite) TestLoadTable() {
	t := s.addParquetTable("loaded", []int64{1, 2}, []int64{3})
	url := s.srv.ProfileFile(s.T()) + "#" + t.FullName()

	rs, err := LoadTable(s.ctx, url, LoadOptions{Config: s.cfg, Limit: testutil.Ptr(2)})
	s.Require().NoError(err)
	s.Equal(2, rs.Len())
	s.Contains(rs.SchemaString, `"id"`)

	_, err = LoadTable(s.ctx, "no-fragment", LoadOptions{})
	s.True(errors.IsType(err, errors.ErrorTypeValidation))

	_, err = LoadTable(s.ctx, "/does/not/exist.share#a.b.c", LoadOptions{})
	s.True(errors.IsType(err, errors.ErrorTypeConfig))
}

func (s *SharingClientTestSuite) TestSpansAreRecorded() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	s.T().Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	_, err := s.client.ListAllTables(s.ctx)
	s.Require().NoError(err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Name() == "sharing.list_all_tables" {
			s.Empty(span.Events(), "no fallback happened")
		}
	}
	s.Contains(names, "sharing.list_all_tables")

	s.srv.DisableAllTables("share2")
	_, err = s.client.ListAllTables(s.ctx)
	s.Require().NoError(err)

	ended := recorder.Ended()
	last := ended[len(ended)-1]
	s.Equal("sharing.list_all_tables", last.Name())
	s.Require().Len(last.Events(), 1)
	event := last.Events()[0]
	s.Equal("all_tables_fallback", event.Name)
	s.Contains(event.Attributes, attribute.String(observability.AttrShare, "share2"))
	s.Contains(event.Attributes, attribute.Int("discarded_tables", 1))
}

func TestNewClientFromConfig(t *testing.T) {
	_, err := NewClientFromConfig(config.Default(), nil)
	require.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	srv := testutil.NewSharingServer(t)
	srv.AddShare("s")
	cfg := config.Default()
	cfg.Profile = srv.ProfileFile(t)

	c, err := NewClientFromConfig(cfg, testutil.TestLogger(t))
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, srv.Endpoint(), c.Profile().Endpoint)

	shares, err := c.ListShares(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, shares, 1)

	bad := config.Default()
	bad.Reader.MaxConcurrency = 0
	_, err = NewClient(srv.Profile(t), bad, nil)
	require.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
