package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/KaramelBytes/tablechat-cli/internal/ai"
	"github.com/KaramelBytes/tablechat-cli/internal/pipeline"
	"github.com/KaramelBytes/tablechat-cli/internal/session"
)

const ordersCSV = "order_date,region,amount\n" +
	"2024-01-05,north,10\n" +
	"2024-01-20,south,20\n" +
	"2024-02-03,north,30\n"

const ordersDict = "column,type,description\n" +
	"order_date,date,When the order was placed\n" +
	"amount,float,Order total in USD\n"

type fakeCompleter struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func newTestServer(t *testing.T, c pipeline.Completer) (*httptest.Server, session.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := session.Open(session.BackendSQLite, dir, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	p := &pipeline.Pipeline{Completer: c, Options: pipeline.DefaultOptions(), Provider: "ollama", Model: "llama3.1:8b", HistoryTurns: 3}
	srv := New(Config{UploadDir: filepath.Join(dir, "uploads")}, store, p, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func multipartBody(t *testing.T, files map[string][2]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, f := range files {
		w, err := mw.CreateFormFile(field, f[0])
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := w.Write([]byte(f[1])); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func createSession(t *testing.T, ts *httptest.Server) createResponse {
	t.Helper()
	body, ct := multipartBody(t, map[string][2]string{
		"dataset":    {"orders.csv", ordersCSV},
		"dictionary": {"../dict.csv", ordersDict},
	}, map[string]string{"name": "orders"})
	resp, err := http.Post(ts.URL+"/api/sessions", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out createResponse
	decode(t, resp, &out)
	return out
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out map[string]string
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("unexpected health: %d %v", resp.StatusCode, out)
	}
}

func TestCreateSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	out := createSession(t, ts)
	if out.Session.Name != "orders" || out.Session.Dataset != "orders.csv" || out.Session.Dictionary != "dict.csv" {
		t.Fatalf("unexpected session: %+v", out.Session)
	}
	if out.Rows != 3 || strings.Join(out.Columns, ",") != "order_date,region,amount" {
		t.Fatalf("unexpected shape: rows=%d cols=%v", out.Rows, out.Columns)
	}
	if m, _ := out.Reconciliation.For("region"); m.Kind != "none" {
		t.Fatalf("region should be unmatched, got %v", m.Kind)
	}
	if m, _ := out.Reconciliation.For("amount"); m.Kind != "exact" || m.Field == nil || m.Field.Description != "Order total in USD" {
		t.Fatalf("amount should match exactly: %+v", m)
	}
}

func TestCreateSessionSameFileNames(t *testing.T) {
	ts, store := newTestServer(t, &fakeCompleter{})
	body, ct := multipartBody(t, map[string][2]string{
		"dataset":    {"export.csv", ordersCSV},
		"dictionary": {"export.csv", ordersDict},
	}, nil)
	resp, err := http.Post(ts.URL+"/api/sessions", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out createResponse
	decode(t, resp, &out)
	if out.Rows != 3 || strings.Join(out.Columns, ",") != "order_date,region,amount" {
		t.Fatalf("dataset replaced by dictionary: rows=%d cols=%v", out.Rows, out.Columns)
	}
	sess, err := store.Load(context.Background(), out.Session.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.DatasetPath == sess.DictionaryPath {
		t.Fatalf("dataset and dictionary share %s", sess.DatasetPath)
	}
	data, err := os.ReadFile(sess.DatasetPath)
	if err != nil || string(data) != ordersCSV {
		t.Fatalf("dataset on disk = %q (%v)", data, err)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	cases := []struct {
		name   string
		files  map[string][2]string
		fields map[string]string
		status int
	}{
		{"no dataset", map[string][2]string{}, nil, http.StatusBadRequest},
		{"empty dataset", map[string][2]string{"dataset": {"a.csv", ""}}, nil, http.StatusUnprocessableEntity},
		{"bad strategy", map[string][2]string{"dataset": {"a.csv", ordersCSV}}, map[string]string{"strategy": "rag"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		body, ct := multipartBody(t, c.files, c.fields)
		resp, err := http.Post(ts.URL+"/api/sessions", ct, body)
		if err != nil {
			t.Fatalf("%s: post: %v", c.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.status {
			t.Errorf("%s: status %d want %d", c.name, resp.StatusCode, c.status)
		}
	}
}

func TestAskAndHistory(t *testing.T) {
	fc := &fakeCompleter{answer: "February had 30."}
	ts, store := newTestServer(t, fc)
	created := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/api/sessions/"+created.Session.ID+"/ask", "application/json",
		strings.NewReader(`{"question":"Total amount in February?"}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var ans askResponse
	decode(t, resp, &ans)
	if resp.StatusCode != http.StatusOK || ans.Answer != "February had 30." || ans.Turns != 1 || ans.Prompt != "" {
		t.Fatalf("unexpected answer: %d %+v", resp.StatusCode, ans)
	}
	sess, err := store.Load(context.Background(), created.Session.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Question != "Total amount in February?" {
		t.Fatalf("history not saved: %+v", sess.History)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + created.Session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var view sessionView
	decode(t, resp, &view)
	if len(view.History) != 1 || view.History[0].Answer != "February had 30." {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestAskDryRun(t *testing.T) {
	fc := &fakeCompleter{answer: "unused"}
	ts, _ := newTestServer(t, fc)
	created := createSession(t, ts)
	resp, err := http.Post(ts.URL+"/api/sessions/"+created.Session.ID+"/ask", "application/json",
		strings.NewReader(`{"question":"rows?","strategy":"sample","dry_run":true}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var ans askResponse
	decode(t, resp, &ans)
	if fc.calls != 0 || ans.Turns != 0 {
		t.Fatalf("dry run should not call the service")
	}
	if !strings.Contains(ans.Prompt, "[SAMPLE ROWS]") || strings.Contains(ans.Prompt, "[DATASET PROFILE]") {
		t.Fatalf("unexpected prompt:\n%s", ans.Prompt)
	}
}

func TestAskServiceError(t *testing.T) {
	fc := &fakeCompleter{err: &ai.ServiceError{Provider: "ollama", Model: "m", Err: &ai.UnreachableError{Host: "http://127.0.0.1:1"}}}
	ts, _ := newTestServer(t, fc)
	created := createSession(t, ts)
	resp, err := http.Post(ts.URL+"/api/sessions/"+created.Session.ID+"/ask", "application/json",
		strings.NewReader(`{"question":"anything"}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var body errorBody
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusBadGateway || body.Hint == "" {
		t.Fatalf("expected 502 with hint, got %d %+v", resp.StatusCode, body)
	}
}

func TestAskValidation(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{answer: "x"})
	created := createSession(t, ts)
	for body, status := range map[string]int{
		`{"question":"  "}`:                  http.StatusBadRequest,
		`not json`:                           http.StatusBadRequest,
		`{"question":"q","strategy":"nope"}`: http.StatusBadRequest,
	} {
		resp, err := http.Post(ts.URL+"/api/sessions/"+created.Session.ID+"/ask", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("ask: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != status {
			t.Errorf("%s: status %d want %d", body, resp.StatusCode, status)
		}
	}
	resp, err := http.Post(ts.URL+"/api/sessions/3f0c1a7e-0000-4000-8000-000000000000/ask", "application/json", strings.NewReader(`{"question":"q"}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: status %d", resp.StatusCode)
	}
}

func TestProfile(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	created := createSession(t, ts)
	resp, err := http.Get(ts.URL + "/api/sessions/" + created.Session.ID + "/profile")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out struct {
		Profile struct {
			Rows     int `json:"row_count"`
			Temporal []struct {
				Column string `json:"column"`
			} `json:"temporal_columns"`
		} `json:"profile"`
	}
	decode(t, resp, &out)
	if out.Profile.Rows != 3 || len(out.Profile.Temporal) != 1 || out.Profile.Temporal[0].Column != "order_date" {
		t.Fatalf("unexpected profile: %+v", out.Profile)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + created.Session.ID + "/profile?format=markdown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(buf.String(), "[DATASET SUMMARY]") {
		t.Fatalf("markdown report missing summary:\n%s", buf.String())
	}
}

func TestDeleteAndList(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCompleter{})
	created := createSession(t, ts)

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list struct {
		Sessions []sessionView `json:"sessions"`
	}
	decode(t, resp, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list.Sessions))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+created.Session.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp, err = http.Get(ts.URL + "/api/sessions/" + created.Session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}
