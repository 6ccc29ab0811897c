package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ajitpratap0/deltashare/pkg/json"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// ServerPrefix is the endpoint path of the fake sharing server
const ServerPrefix = "/delta-sharing"

// TableFixture is what the fake server returns for one table
type TableFixture struct {
	Protocol protocol.Protocol
	Metadata protocol.Metadata
	Files    []protocol.AddFile
	Version  int64
	// RawQuery, when set, replaces the generated query response body
	RawQuery string
}

// RecordedRequest is a request seen by the fake server
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	UserAgent     string
	Body          string
}

// SharingServer is an in-process sharing server backed by httptest. Listings
// honour PageSize and hand out numeric page tokens.
type SharingServer struct {
	*httptest.Server

	Token string
	// PageSize splits listings into pages (0 = one page)
	PageSize int
	// AllTablesUnsupported makes every all-tables call return 404
	AllTablesUnsupported bool

	mu       sync.Mutex
	shares   []protocol.Share
	schemas  map[string][]protocol.Schema
	tables   map[string][]protocol.Table
	fixtures map[string]TableFixture
	files    map[string][]byte
	failures map[string]int
	noAll    map[string]bool
	requests []RecordedRequest
}

// NewSharingServer starts a fake server; it is closed when the test ends.
func NewSharingServer(t *testing.T) *SharingServer {
	t.Helper()
	s := &SharingServer{
		Token:    "test-token",
		schemas:  make(map[string][]protocol.Schema),
		tables:   make(map[string][]protocol.Table),
		fixtures: make(map[string]TableFixture),
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		noAll:    make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ServerPrefix+"/shares", s.auth(s.listShares))
	mux.HandleFunc("GET "+ServerPrefix+"/shares/{share}/schemas", s.auth(s.listSchemas))
	mux.HandleFunc("GET "+ServerPrefix+"/shares/{share}/schemas/{schema}/tables", s.auth(s.listTables))
	mux.HandleFunc("GET "+ServerPrefix+"/shares/{share}/all-tables", s.auth(s.listAllTables))
	mux.HandleFunc("HEAD "+ServerPrefix+"/shares/{share}/schemas/{schema}/tables/{table}", s.auth(s.tableVersion))
	mux.HandleFunc("GET "+ServerPrefix+"/shares/{share}/schemas/{schema}/tables/{table}/metadata", s.auth(s.tableMetadata))
	mux.HandleFunc("POST "+ServerPrefix+"/shares/{share}/schemas/{schema}/tables/{table}/query", s.auth(s.queryTable))
	mux.HandleFunc("GET /files/{name}", s.record(s.serveFile))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the profile endpoint of the server
func (s *SharingServer) Endpoint() string {
	return s.URL + ServerPrefix
}

// Profile returns a valid profile for the server
func (s *SharingServer) Profile(t *testing.T) *protocol.Profile {
	t.Helper()
	p, err := protocol.NewProfile(1, s.Endpoint(), s.Token, "")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return p
}

// ProfileFile writes the server profile to a temp file and returns its path
func (s *SharingServer) ProfileFile(t *testing.T) string {
	t.Helper()
	data, err := protocol.MarshalProfile(s.Profile(t))
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.share")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

// AddShare registers shares in listing order
func (s *SharingServer) AddShare(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.shares = append(s.shares, protocol.Share{Name: n})
	}
}

// AddSchema registers a schema under share
func (s *SharingServer) AddSchema(share string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.schemas[share] = append(s.schemas[share], protocol.Schema{Name: n, Share: share})
	}
}

// AddTable registers a table and its query fixture
func (s *SharingServer) AddTable(table protocol.Table, fixture TableFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := table.Share + "/" + table.Schema
	s.tables[key] = append(s.tables[key], table)
	s.fixtures[table.FullName()] = fixture
}

// DisableAllTables makes the all-tables endpoint of share return 404
func (s *SharingServer) DisableAllTables(share string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noAll[share] = true
}

// AddFile serves data at /files/{name} without authentication and returns its URL
func (s *SharingServer) AddFile(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return s.URL + "/files/" + name
}

// FailFile makes the next n requests for file name return 500
func (s *SharingServer) FailFile(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = n
}

// Requests returns every request seen so far
func (s *SharingServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests returns how many requests had a path containing fragment
func (s *SharingServer) CountRequests(fragment string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.Contains(r.Path, fragment) {
			n++
		}
	}
	return n
}

func (s *SharingServer) record(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			UserAgent:     r.Header.Get("User-Agent"),
			Body:          string(body),
		})
		s.mu.Unlock()
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next(w, r)
	}
}

func (s *SharingServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return s.record(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "The bearer token is invalid")
			return
		}
		next(w, r)
	})
}

func (s *SharingServer) listShares(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]protocol.Share(nil), s.shares...)
	s.mu.Unlock()
	writePage(w, r, s.PageSize, items)
}

func (s *SharingServer) listSchemas(w http.ResponseWriter, r *http.Request) {
	share := r.PathValue("share")
	s.mu.Lock()
	if !s.hasShare(share) {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "share "+share+" not found")
		return
	}
	items := append([]protocol.Schema(nil), s.schemas[share]...)
	s.mu.Unlock()
	writePage(w, r, s.PageSize, items)
}

func (s *SharingServer) listTables(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := append([]protocol.Table(nil), s.tables[r.PathValue("share")+"/"+r.PathValue("schema")]...)
	s.mu.Unlock()
	writePage(w, r, s.PageSize, items)
}

func (s *SharingServer) listAllTables(w http.ResponseWriter, r *http.Request) {
	share := r.PathValue("share")
	s.mu.Lock()
	if s.AllTablesUnsupported || s.noAll[share] || !s.hasShare(share) {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "all-tables is not supported")
		return
	}
	var items []protocol.Table
	for _, schema := range s.schemas[share] {
		items = append(items, s.tables[share+"/"+schema.Name]...)
	}
	s.mu.Unlock()
	writePage(w, r, s.PageSize, items)
}

func (s *SharingServer) tableVersion(w http.ResponseWriter, r *http.Request) {
	fixture, ok := s.fixture(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Delta-Table-Version", strconv.FormatInt(fixture.Version, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *SharingServer) tableMetadata(w http.ResponseWriter, r *http.Request) {
	fixture, ok := s.fixture(r)
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "table not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	writeLines(w,
		map[string]interface{}{protocol.TagProtocol: fixture.Protocol},
		map[string]interface{}{protocol.TagMetadata: fixture.Metadata})
}

func (s *SharingServer) queryTable(w http.ResponseWriter, r *http.Request) {
	fixture, ok := s.fixture(r)
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "table not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	if fixture.RawQuery != "" {
		_, _ = io.WriteString(w, fixture.RawQuery)
		return
	}

	lines := []interface{}{
		map[string]interface{}{protocol.TagProtocol: fixture.Protocol},
		map[string]interface{}{protocol.TagMetadata: fixture.Metadata},
	}
	for _, f := range fixture.Files {
		lines = append(lines, map[string]interface{}{protocol.TagFile: f})
	}
	writeLines(w, lines...)
}

func (s *SharingServer) serveFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	data, ok := s.files[name]
	fail := s.failures[name]
	if fail > 0 {
		s.failures[name] = fail - 1
	}
	s.mu.Unlock()

	switch {
	case fail > 0:
		w.WriteHeader(http.StatusInternalServerError)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}
}

func (s *SharingServer) fixture(r *http.Request) (TableFixture, bool) {
	name := r.PathValue("share") + "." + r.PathValue("schema") + "." + r.PathValue("table")
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fixtures[name]
	return f, ok
}

func (s *SharingServer) hasShare(name string) bool {
	for _, sh := range s.shares {
		if sh.Name == name {
			return true
		}
	}
	return false
}

func writePage[T any](w http.ResponseWriter, r *http.Request, pageSize int, items []T) {
	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(items) {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "bad page token")
			return
		}
		start = n
	}
	if mr := r.URL.Query().Get("maxResults"); mr != "" {
		if n, err := strconv.Atoi(mr); err == nil && n > 0 && (pageSize == 0 || n < pageSize) {
			pageSize = n
		}
	}

	end := len(items)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	page := items[start:end]
	if page == nil {
		page = []T{}
	}
	body := map[string]interface{}{"items": page}
	if end < len(items) {
		body["nextPageToken"] = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeLines(w io.Writer, lines ...interface{}) {
	enc := json.NewEncoder(w)
	for _, l := range lines {
		_ = enc.Encode(l)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"errorCode": code, "message": message})
}
