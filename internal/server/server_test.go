package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baagent/internal/approval"
	"baagent/internal/backlog"
	"baagent/internal/orchestrator"
	"baagent/internal/store"
	"baagent/internal/tracker"
	"baagent/internal/types"
	"baagent/internal/usage"
)

type fakeGenerator struct {
	mu       sync.Mutex
	err      error
	filename string
}

func (g *fakeGenerator) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGenerator) lastFilename() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filename
}

func (g *fakeGenerator) Run(ctx context.Context, file []byte, filename string) (*orchestrator.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filename = filename
	if g.err != nil {
		return nil, g.err
	}
	return &orchestrator.Result{
		Bundle:     types.Bundle{TRD: "# TRD", HLD: "graph TD\nA-->B"},
		AnalysisID: "analysis-1",
	}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, data []byte, filename string) (types.ExtractedContent, error) {
	return types.ExtractedContent{Text: "extracted " + filename}, nil
}

type fakeLibrary struct {
	mu        sync.Mutex
	docs      map[string]types.Document
	lastQuery []interface{}
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{docs: make(map[string]types.Document)}
}

func (l *fakeLibrary) SaveDocument(ctx context.Context, doc types.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[doc.ID] = doc
	return nil
}

func (l *fakeLibrary) ListDocuments(ctx context.Context) ([]types.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Document, 0, len(l.docs))
	for _, d := range l.docs {
		d.Content = ""
		out = append(out, d)
	}
	return out, nil
}

func (l *fakeLibrary) GetDocument(ctx context.Context, id string) (types.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.docs[id]
	if !ok {
		return types.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (l *fakeLibrary) ListAnalyses(ctx context.Context) ([]types.Analysis, error) {
	return []types.Analysis{}, nil
}

func (l *fakeLibrary) GetAnalysis(ctx context.Context, id string) (types.Analysis, error) {
	return types.Analysis{}, store.ErrNotFound
}

func (l *fakeLibrary) Search(ctx context.Context, query, collection string, n int) (store.SearchResults, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastQuery = []interface{}{query, collection, n}
	return store.SearchResults{
		Documents: []string{"cart checkout"},
		Metadatas: []map[string]interface{}{{"name": "reqs.pdf"}},
		Distances: []float64{0.1},
		IDs:       []string{"doc-1"},
	}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, code string) ([]byte, error) {
	if code == "boom" {
		return nil, errors.New("diagram rendering failed: 400 - bad syntax")
	}
	return []byte("\x89PNG"), nil
}

type fakeNotifier struct{ err error }

func (n fakeNotifier) NotifyApproval(ctx context.Context, id string, bundle types.Bundle) error {
	return n.err
}

type fakeBuilder struct {
	configured atomic.Bool
	nodes      atomic.Int32
}

func (b *fakeBuilder) Configured() bool { return b.configured.Load() }

func (b *fakeBuilder) Create(ctx context.Context, nodes []*backlog.Node) tracker.Report {
	total := backlog.Count(nodes).Total()
	b.nodes.Store(int32(total))
	return tracker.Report{Created: total}
}

type fixture struct {
	srv     *httptest.Server
	usage   *usage.Tracker
	gen     *fakeGenerator
	lib     *fakeLibrary
	builder *fakeBuilder
	dir     string
}

func newFixture(t *testing.T, notifyErr error) *fixture {
	t.Helper()
	f := &fixture{
		gen:     &fakeGenerator{},
		lib:     newFakeLibrary(),
		builder: &fakeBuilder{},
		dir:     t.TempDir(),
		usage:   usage.NewTracker(""),
	}
	f.builder.configured.Store(true)
	machine, err := approval.New(approval.Config{
		Store:    approval.NewMemoryStore(),
		Notifier: fakeNotifier{err: notifyErr},
		Builder:  f.builder,
	})
	require.NoError(t, err)

	s := New(Config{UploadDir: f.dir}, Deps{
		Generator: f.gen,
		Extractor: fakeExtractor{},
		Library:   f.lib,
		Approvals: machine,
		Renderer:  fakeRenderer{},
		Usage:     f.usage,
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) url(path string) string { return f.srv.URL + path }

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postFile(t *testing.T, url, field, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestIndex(t *testing.T) {
	f := newFixture(t, nil)
	resp := get(t, f.url("/"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "AI Business Analyst Backend is running!")

	assert.Equal(t, http.StatusNotFound, get(t, f.url("/nope")).StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodOptions, f.url("/api/generate"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, nil)

	resp := postFile(t, f.url("/api/generate"), "file", "reqs.docx", []byte("data"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "analysis-1", body["analysis_id"])
	assert.Equal(t, "# TRD", body["trd"])
	assert.Equal(t, []interface{}{}, body["backlog"])
	assert.Equal(t, "reqs.docx", f.gen.lastFilename())
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGenerate_NoFile(t *testing.T) {
	f := newFixture(t, nil)
	resp := postFile(t, f.url("/api/generate"), "", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file part in the request", decode(t, resp)["error"])
}

func TestGenerate_SpecialistFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.fail(&orchestrator.SpecialistError{
		Agents: []string{"backlog", "lld"},
		Errs:   map[string]error{"backlog": errors.New("x"), "lld": errors.New("y")},
	})

	resp := postFile(t, f.url("/api/generate"), "file", "reqs.pdf", []byte("data"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "One or more specialist agents failed.", body["error"])
	assert.Equal(t, []interface{}{"backlog", "lld"}, body["failed_agents"])
}

func TestGenerate_PlanningFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.fail(errors.Join(orchestrator.ErrPlanningFailed, errors.New("quota")))

	resp := postFile(t, f.url("/api/generate"), "file", "reqs.pdf", []byte("data"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "planning agent failed")
}

func TestUploadDocument(t *testing.T) {
	f := newFixture(t, nil)

	resp := postFile(t, f.url("/api/upload_document"), "file", "notes.txt", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postFile(t, f.url("/api/upload_document"), "file", "reqs.pdf", []byte("%PDF-1.4 data"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "reqs.pdf", body["name"])
	assert.Equal(t, "pdf", body["fileType"])
	assert.Equal(t, float64(len("%PDF-1.4 data")), body["size"])
	assert.Equal(t, "uploaded", body["status"])
	assert.NotContains(t, body, "content")

	saved, err := os.ReadFile(f.dir + "/" + id + "_reqs.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 data", string(saved))

	resp = get(t, f.url("/api/documents/"+id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "extracted reqs.pdf", decode(t, resp)["content"])

	resp = get(t, f.url("/api/documents"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestNotFoundResources(t *testing.T) {
	f := newFixture(t, nil)

	resp := get(t, f.url("/api/documents/missing"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Document not found", decode(t, resp)["error"])

	resp = get(t, f.url("/api/analyses/missing"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Analysis not found", decode(t, resp)["error"])

	resp = get(t, f.url("/api/analyses"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", strings.TrimSpace(readAll(t, resp)))
}

func TestRenderMermaid(t *testing.T) {
	f := newFixture(t, nil)

	resp := postJSON(t, f.url("/api/render_mermaid"), `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No Mermaid code provided", decode(t, resp)["error"])

	resp = postJSON(t, f.url("/api/render_mermaid"), `{"code":"boom"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = postJSON(t, f.url("/api/render_mermaid"), `{"code":"graph TD\nA-->B"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "\x89PNG", readAll(t, resp))
}

func TestConvertToDocx(t *testing.T) {
	f := newFixture(t, nil)

	resp := postJSON(t, f.url("/api/convert_to_docx"), `{"markdown":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.url("/api/convert_to_docx"), `{"markdown":"# Title\n\nBody"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Technical_Requirements_Document.docx")
	assert.True(t, strings.HasPrefix(readAll(t, resp), "PK"))
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)

	resp := postJSON(t, f.url("/api/search"), `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.url("/api/search"), `{"query":"cart","collection":"points"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.url("/api/search"), `{"query":"cart"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "cart", body["query"])
	assert.Equal(t, float64(1), body["total_results"])
	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	assert.Equal(t, []interface{}{"cart", "documents", 5}, f.lib.lastQuery)
}

const approveBody = `{"documents":{"trd":"# TRD","backlog":[
  {"type":"Epic","title":"Checkout","children":[
    {"type":"Feature","title":"Cart","children":[{"type":"User Story","title":"Add item"}]}]}]}}`

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, nil)

	resp := postJSON(t, f.url("/api/approve"), `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No documents provided for approval.", decode(t, resp)["error"])

	resp = postJSON(t, f.url("/api/approve"), approveBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	id, _ := body["approval_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", body["status"])
	assert.NotContains(t, body, "notification_error")

	resp = get(t, f.url("/api/approval_status/"+id))
	assert.Equal(t, "pending", decode(t, resp)["status"])

	resp = get(t, f.url("/api/approval_response?id="+id+"&decision=approved"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := readAll(t, resp)
	assert.Contains(t, page, "Thank you!")
	assert.Contains(t, page, "Approved")
	assert.Contains(t, page, "successfully created in Azure DevOps")
	assert.Equal(t, int32(3), f.builder.nodes.Load())

	resp = get(t, f.url("/api/approval_status/"+id))
	assert.Equal(t, "approved_and_created", decode(t, resp)["status"])

	resp = get(t, f.url("/api/approval_response?id="+id+"&decision=rejected"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "already been processed")
}

func TestApprovalResponse_Errors(t *testing.T) {
	f := newFixture(t, nil)

	resp := get(t, f.url("/api/approval_response?id=unknown&decision=approved"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "Invalid or expired")

	resp = get(t, f.url("/api/approval_response?decision=approved"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.url("/api/approve"), approveBody)
	id, _ := decode(t, resp)["approval_id"].(string)

	resp = get(t, f.url("/api/approval_response?id="+id+"&decision=maybe"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, f.url("/api/approval_status/"+id))
	assert.Equal(t, "pending", decode(t, resp)["status"])

	resp = get(t, f.url("/api/approval_status/unknown"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Approval ID not found.", decode(t, resp)["error"])
}

func TestApprovalResponse_TrackerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.builder.configured.Store(false)

	resp := postJSON(t, f.url("/api/approve"), approveBody)
	id, _ := decode(t, resp)["approval_id"].(string)

	resp = get(t, f.url("/api/approval_response?id="+id+"&decision=approved"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "error creating the work items")

	resp = get(t, f.url("/api/approval_status/"+id))
	assert.Equal(t, "ado_failed", decode(t, resp)["status"])
}

func TestApprove_NotificationFailure(t *testing.T) {
	f := newFixture(t, errors.New("smtp down"))

	resp := postJSON(t, f.url("/api/approve"), approveBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "smtp down", body["notification_error"])
}

type fakeHealth struct {
	stats map[string]int
	err   error
}

func (h fakeHealth) Stats() (map[string]int, error) { return h.stats, h.err }

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(New(Config{}, Deps{Health: fakeHealth{stats: map[string]int{"documents": 2}}}).Handler())
	defer srv.Close()

	resp := get(t, srv.URL+"/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"documents": float64(2)}, body["tables"])

	failing := httptest.NewServer(New(Config{}, Deps{Health: fakeHealth{err: errors.New("database is closed")}}).Handler())
	defer failing.Close()

	resp = get(t, failing.URL+"/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "database is closed", decode(t, resp)["error"])
}

func TestUsage(t *testing.T) {
	f := newFixture(t, nil)
	f.usage.Track(usage.WithAgent(context.Background(), "trd"), "gemini-test", 10, 20)

	resp := get(t, f.url("/api/usage"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats usage.AggregatedStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(30), stats.Total.Total)
	assert.Equal(t, int64(1), stats.ByAgent["trd"].Calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestUnconfiguredDeps(t *testing.T) {
	srv := httptest.NewServer(New(Config{}, Deps{}).Handler())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/approve", approveBody)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = get(t, srv.URL+"/api/documents")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
