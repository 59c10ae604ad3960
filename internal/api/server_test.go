package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/amirmursal/medinet-process-data/internal/ingest"
	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
	"github.com/amirmursal/medinet-process-data/internal/storage/memory"
)

var testFields = []string{"Patient_Name", "Chart_ID"}

func newTestServer(t *testing.T, repo storage.Repository) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewServer(Config{UploadDir: dir, Fields: testFields, Job: "test"}, repo, ingest.New(repo, "test"))
	return s, dir
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type searchResponse struct {
	Message string          `json:"message"`
	Data    []record.Stored `json:"data"`
	Error   string          `json:"error"`
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, name string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return bytes.NewReader(buf.Bytes()), mw.FormDataContentType()
}

func TestUploadSearchDelete(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	s, dir := newTestServer(t, repo)
	h := s.Handler()

	body, ct := multipartBody(t, "file", "patients.xlsx", workbook(t, [][]any{
		{"Patient Name", "Chart ID"},
		{"Alice", "C1"},
		{"Bob", "C2"},
	}))
	rec := do(t, h, http.MethodPost, "/upload", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d body=%s", rec.Code, rec.Body)
	}
	if got := decode[messageBody](t, rec).Message; got != msgUploaded {
		t.Fatalf("upload message = %q", got)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("upload dir not cleaned: %v", entries)
	}

	search := map[string]any{"conditions": []query.Condition{{Field: "Chart_ID", Operator: query.OpEquals, Value: "C1"}}}
	rec = do(t, h, http.MethodPost, "/search", jsonBody(t, search), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d body=%s", rec.Code, rec.Body)
	}
	resp := decode[searchResponse](t, rec)
	if resp.Message != msgFetched || len(resp.Data) != 1 || resp.Data[0].Fields["Patient_Name"] != "Alice" {
		t.Fatalf("search response = %+v", resp)
	}
	if !strings.Contains(rec.Body.String(), `"_id":"`+resp.Data[0].ID+`"`) {
		t.Fatalf("record id not exposed as _id: %s", rec.Body)
	}

	rec = do(t, h, http.MethodDelete, "/delete", jsonBody(t, map[string]string{"id": resp.Data[0].ID}), "application/json")
	if rec.Code != http.StatusOK || decode[messageBody](t, rec).Message != msgDeleted {
		t.Fatalf("delete status = %d body=%s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/search", jsonBody(t, search), "application/json")
	if resp := decode[searchResponse](t, rec); len(resp.Data) != 0 {
		t.Fatalf("deleted record still returned: %+v", resp.Data)
	}
	if repo.Len() != 1 {
		t.Fatalf("repo.Len() = %d, want 1", repo.Len())
	}
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	s, dir := newTestServer(t, memory.NewRepository())
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/upload", bytes.NewReader(nil), "")
	if rec.Code != http.StatusBadRequest || decode[messageBody](t, rec).Message != msgNoFile {
		t.Fatalf("no file: status = %d body=%s", rec.Code, rec.Body)
	}

	body, ct := multipartBody(t, "other", "x.xlsx", []byte("data"))
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong field: status = %d", rec.Code)
	}

	body, ct = multipartBody(t, "file", "broken.xlsx", []byte("PK\x03\x04 not really a zip"))
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	if rec.Code != http.StatusInternalServerError || decode[messageBody](t, rec).Message != msgUploadFail {
		t.Fatalf("corrupt file: status = %d body=%s", rec.Code, rec.Body)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("failed upload left files behind: %v", entries)
	}
}

func TestSearch_RequestShapes(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	if _, err := repo.InsertMany(context.Background(), []record.Record{
		{"Patient_Name": "Alice", "Chart_ID": "C1"},
		{"Patient_Name": "Bob", "Chart_ID": "C2"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, _ := newTestServer(t, repo)
	h := s.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		want   int
	}{
		{"empty body matches all", "", http.StatusOK, 2},
		{"empty object matches all", "{}", http.StatusOK, 2},
		{"wire predicate", `{"search":{"Patient_Name":{"$regex":"bo","$options":"i"}}}`, http.StatusOK, 1},
		{"search wins over conditions", `{"search":{},"conditions":[{"field":"Chart_ID","operator":"equals","value":"C1"}]}`, http.StatusOK, 2},
		{"conditions", `{"conditions":[{"field":"Chart_ID","operator":"equals","value":"C2"}]}`, http.StatusOK, 1},
		{"empty conditions match nothing", `{"conditions":[]}`, http.StatusOK, 0},
		{"null search falls through", `{"search":null}`, http.StatusOK, 2},
		{"malformed json", `{"search":`, http.StatusBadRequest, 0},
		{"bad wire predicate", `{"search":{"Age":{"$where":"1"}}}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/search", bytes.NewReader([]byte(tt.body)), "application/json")
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (body=%s)", tt.name, rec.Code, tt.status, rec.Body)
		}
		resp := decode[searchResponse](t, rec)
		if tt.status != http.StatusOK {
			if resp.Error == "" {
				t.Fatalf("%s: missing error message", tt.name)
			}
			continue
		}
		if len(resp.Data) != tt.want {
			t.Fatalf("%s: %d records, want %d", tt.name, len(resp.Data), tt.want)
		}
	}
}

// failingRepo rejects every operation.
type failingRepo struct{ memory.Repository }

var errDown = errors.New("down")

func (*failingRepo) InsertMany(context.Context, []record.Record) (int64, error) { return 0, errDown }
func (*failingRepo) Find(context.Context, query.Predicate) ([]record.Stored, error) {
	return nil, errDown
}
func (*failingRepo) DeleteByID(context.Context, string) (int64, error) { return 0, errDown }
func (*failingRepo) Ping(context.Context) error                        { return errDown }

func TestStoreFailures(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &failingRepo{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/search", bytes.NewReader([]byte("{}")), "application/json")
	if rec.Code != http.StatusInternalServerError || decode[searchResponse](t, rec).Error != msgFetchFail {
		t.Fatalf("search: status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodDelete, "/delete", jsonBody(t, map[string]string{"id": "x"}), "application/json")
	if rec.Code != http.StatusInternalServerError || decode[errorBody](t, rec).Error != msgDeleteFail {
		t.Fatalf("delete: status = %d body=%s", rec.Code, rec.Body)
	}
	body, ct := multipartBody(t, "file", "a.csv", []byte("A,B\n1,2\n"))
	rec = do(t, h, http.MethodPost, "/upload", body, ct)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("upload: status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
}

func TestDelete_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, memory.NewRepository())
	h := s.Handler()

	for _, body := range []string{"", "{}", `{"id":"  "}`} {
		rec := do(t, h, http.MethodDelete, "/delete", bytes.NewReader([]byte(body)), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
	}
	rec := do(t, h, http.MethodDelete, "/delete", jsonBody(t, map[string]string{"id": "absent"}), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("absent id: status = %d, want 200", rec.Code)
	}
}

func TestFieldsAndCompile(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, memory.NewRepository())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/fields", nil, "")
	fields := decode[struct {
		Fields    []string `json:"fields"`
		Operators []string `json:"operators"`
	}](t, rec)
	if len(fields.Fields) != 2 || fields.Fields[0] != "Patient_Name" || len(fields.Operators) != 4 || fields.Operators[0] != "equals" {
		t.Fatalf("fields = %+v", fields)
	}

	body := `{"conditions":[{"field":"Patient_Name","operator":"contains","value":"a.b"},{"field":"Chart_ID","operator":"equals","value":"C1"}]}`
	rec = do(t, h, http.MethodPost, "/query/compile", bytes.NewReader([]byte(body)), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("compile status = %d body=%s", rec.Code, rec.Body)
	}
	want := `{"search":{"$and":[{"Patient_Name":{"$options":"i","$regex":"a\\.b"}},{"Chart_ID":"C1"}]}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("compile body = %s, want %s", got, want)
	}

	for _, bad := range []string{
		`{"conditions":[]}`,
		`{"conditions":[{"field":"Unknown","operator":"equals","value":"x"}]}`,
		`{"conditions":[{"field":"Chart_ID","operator":"equals","value":"1"},{"field":"Chart_ID","operator":"equals","value":"2"}]}`,
	} {
		rec = do(t, h, http.MethodPost, "/query/compile", bytes.NewReader([]byte(bad)), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("compile %s: status = %d", bad, rec.Code)
		}
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, memory.NewRepository())
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" || !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatalf("preflight headers = %v", rec.Header())
	}

	rec = do(t, h, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("healthz: status = %d headers = %v", rec.Code, rec.Header())
	}
	if !decode[struct {
		OK bool `json:"ok"`
	}](t, rec).OK {
		t.Fatalf("healthz body = %s", rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/search", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /search status = %d, want 405", rec.Code)
	}
}

func TestSave_DistinctFilesPerUpload(t *testing.T) {
	t.Parallel()

	s, dir := newTestServer(t, memory.NewRepository())

	const n = 8
	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], _, errs[i] = s.save(strings.NewReader(fmt.Sprintf("upload %d", i)), ".XLSX")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, p := range paths {
		if errs[i] != nil {
			t.Fatalf("save %d: %v", i, errs[i])
		}
		if seen[p] {
			t.Fatalf("save returned %s twice", p)
		}
		seen[p] = true
		if filepath.Dir(p) != dir || !strings.HasPrefix(filepath.Base(p), "file-") || filepath.Ext(p) != ".xlsx" {
			t.Fatalf("save path = %s, want %s/file-*.xlsx", p, dir)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if got, want := string(b), fmt.Sprintf("upload %d", i); got != want {
			t.Fatalf("%s holds %q, want %q", p, got, want)
		}
	}
}
