package web

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
	"github.com/JonMunkholm/SqlAssist/internal/executor"
	"github.com/JonMunkholm/SqlAssist/internal/llm"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
	"github.com/JonMunkholm/SqlAssist/internal/schema"
)

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(context.Context, []string) (string, error) { return g.reply, g.err }
func (g *stubGenerator) ProviderName() string                               { return "stub" }

type stubRunner struct {
	result  executor.Result
	queries []string
}

func (r *stubRunner) Execute(_ context.Context, query string) executor.Result {
	r.queries = append(r.queries, query)
	return r.result
}

func newTestServer(t *testing.T, gen assistant.Generator, run assistant.Runner, cache *schema.Cache) (*httptest.Server, *http.Client) {
	t.Helper()
	catalog, err := prompt.LoadCatalog()
	require.NoError(t, err)

	srv, err := New(Config{
		Controller: &assistant.Controller{
			Generator:         gen,
			Runner:            run,
			Prompts:           prompt.Builder{Config: prompt.Config{IncludeTuning: true, IncludeExplanationRequest: true}},
			Policy:            executor.Permissive,
			ResetAfterExecute: true,
		},
		Catalog:       catalog,
		Schema:        cache,
		SessionSecret: "test-secret-test-secret-test-sec",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return ts, &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHomeRendersDefaults(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, nil)

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "LLM SQL Query Generator")
	assert.Contains(t, body, `<option value="Select a query" selected>`)
	assert.Contains(t, body, `<option value="balanced" selected>Balanced(50%-90%)</option>`)
	assert.NotContains(t, body, "Execute Query")
}

func TestGenerateAndExecuteFlow(t *testing.T) {
	run := &stubRunner{result: executor.Result{
		Kind:    executor.KindRows,
		Columns: []string{"count"},
		Rows:    [][]any{{int64(42)}},
	}}
	gen := &stubGenerator{reply: "```sql\nSELECT COUNT(*) FROM student;\n```\nCounts every student."}
	ts, client := newTestServer(t, gen, run, nil)

	resp, err := client.PostForm(ts.URL+"/generate", url.Values{
		"question": {"How many students are in the database?"},
		"accuracy": {"precise"},
	})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, "SELECT COUNT(*) FROM student;")
	assert.Contains(t, body, "Execute Query")
	assert.Contains(t, body, `<option value="precise" selected>`)

	resp, err = client.PostForm(ts.URL+"/explanation", nil)
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "Counts every student.")

	resp, err = client.PostForm(ts.URL+"/execute", nil)
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Equal(t, []string{"SELECT COUNT(*) FROM student;"}, run.queries)
	assert.Contains(t, body, "<th>count</th>")
	assert.Contains(t, body, "<td>42</td>")
	// selectors return to their defaults after execution
	assert.Contains(t, body, `<option value="balanced" selected>`)

	resp, err = client.Get(ts.URL + "/export.csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	records, err := csv.NewReader(strings.NewReader(readBody(t, resp))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"count"}, {"42"}}, records)
}

func TestBlankQuestionFlashesWarning(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{reply: "SELECT 1;"}, &stubRunner{}, nil)

	resp, err := client.PostForm(ts.URL+"/generate", url.Values{"question": {"   "}})
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), blankQuestionWarning)

	// flashes are shown once
	resp, err = client.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.NotContains(t, readBody(t, resp), blankQuestionWarning)
}

func TestGenerationErrorBanner(t *testing.T) {
	gen := &stubGenerator{err: &llm.GenerationError{Message: "Unable to generate SQL query."}}
	ts, client := newTestServer(t, gen, &stubRunner{}, nil)

	resp, err := client.PostForm(ts.URL+"/generate", url.Values{"question": {"anything"}})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, "Error: Unable to generate SQL query.")
	assert.NotContains(t, body, "Execute Query")
}

func TestSampleSelectionFillsQuestion(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, nil)
	catalog, err := prompt.LoadCatalog()
	require.NoError(t, err)
	sample := catalog.Samples[1]

	resp, err := client.PostForm(ts.URL+"/sample", url.Values{"sample": {sample.Label}})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, `value="`+sample.Question+`"`)
}

func TestSessionsAreIsolated(t *testing.T) {
	gen := &stubGenerator{reply: "SELECT 1;"}
	ts, client := newTestServer(t, gen, &stubRunner{}, nil)

	resp, err := client.PostForm(ts.URL+"/generate", url.Values{"question": {"one"}})
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "SELECT 1;")

	other := &http.Client{}
	resp, err = other.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.NotContains(t, readBody(t, resp), "SELECT 1;")
}

func TestExportWithoutResult(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, nil)

	resp, err := client.Get(ts.URL + "/export.csv")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIGenerate(t *testing.T) {
	tests := []struct {
		name       string
		gen        *stubGenerator
		body       string
		wantStatus int
		wantSQL    string
		wantErr    string
	}{
		{
			name:       "statement",
			gen:        &stubGenerator{reply: "SELECT name FROM companies;"},
			body:       `{"question":"List companies","accuracy":"Precise (100%)"}`,
			wantStatus: http.StatusOK,
			wantSQL:    "SELECT name FROM companies;",
		},
		{
			name:       "blank question",
			gen:        &stubGenerator{},
			body:       `{"question":" "}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "question is required",
		},
		{
			name:       "unknown accuracy",
			gen:        &stubGenerator{},
			body:       `{"question":"q","accuracy":"reckless"}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "unknown accuracy level",
		},
		{
			name:       "generation failure",
			gen:        &stubGenerator{err: errors.New("quota exceeded")},
			body:       `{"question":"q"}`,
			wantStatus: http.StatusBadGateway,
			wantErr:    "Error: quota exceeded",
		},
		{
			name:       "invalid json",
			gen:        &stubGenerator{},
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid JSON body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, client := newTestServer(t, tt.gen, &stubRunner{}, nil)

			resp, err := client.Post(ts.URL+"/api/generate", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var got map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			if tt.wantSQL != "" {
				assert.Equal(t, tt.wantSQL, got["sql"])
			}
			if tt.wantErr != "" {
				assert.Contains(t, got["error"], tt.wantErr)
			}
		})
	}
}

func TestAPIExecute(t *testing.T) {
	run := &stubRunner{result: executor.Result{Kind: executor.KindRows, Columns: []string{"x"}, Rows: [][]any{{int64(1)}}}}
	ts, client := newTestServer(t, &stubGenerator{}, run, nil)

	resp, err := client.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(`{"sql":"SELECT 1 AS x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"kind":"rows","columns":["x"],"rows":[[1]]}`, readBody(t, resp))

	resp, err = client.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(`{"sql":""}`))
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIExecuteErrorResult(t *testing.T) {
	run := &stubRunner{result: executor.Result{Kind: executor.KindError, Message: "Can't delete from the database."}}
	ts, client := newTestServer(t, &stubGenerator{}, run, nil)

	resp, err := client.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(`{"sql":"DELETE FROM offers"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Can't delete from the database.")
}

// mockSchemaOpener hands out a new sqlmock connection per refresh.
func mockSchemaOpener() schema.Opener {
	return func(context.Context) (*sql.DB, error) {
		db, mock, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(
			sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "primary_key"}).
				AddRow("offers", "offer_id", "integer", false, true).
				AddRow("student", "student_id", "integer", false, true),
		)
		mock.ExpectQuery("FOREIGN KEY").WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d"}))
		mock.ExpectQuery("FROM pg_class").WillReturnRows(sqlmock.NewRows([]string{"relname", "reltuples"}))
		mock.ExpectClose()
		return db, nil
	}
}

func TestSchemaEndpointsAndAbout(t *testing.T) {
	cache := schema.NewCache(mockSchemaOpener(), schema.Postgres)
	require.NoError(t, cache.Refresh(context.Background()))

	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, cache)

	resp, err := client.Get(ts.URL + "/schema")
	require.NoError(t, err)
	var payload schemaResponse
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &payload))
	assert.Equal(t, 2, payload.TableCount)
	assert.Equal(t, []string{"companies"}, payload.Missing)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/schema", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/plain")
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "TABLE: student\n  - student_id: integer, PK, NOT NULL\n")

	resp, err = client.Post(ts.URL+"/schema/refresh", "application/json", nil)
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/about")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, "Missing tables: companies")
	assert.Contains(t, body, "<h3>student</h3>")
}

func TestSchemaRefreshFailure(t *testing.T) {
	cache := schema.NewCache(func(context.Context) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}, schema.Postgres)
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, cache)

	resp, err := client.Post(ts.URL+"/schema/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "connection refused")

	resp, err = client.Get(ts.URL + "/about")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "Schema unavailable: connection refused")
}

func TestSchemaWithoutCache(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, nil)

	resp, err := client.Get(ts.URL + "/schema")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts, client := newTestServer(t, &stubGenerator{}, &stubRunner{}, nil)

	resp, err := client.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "sqlassist_http_requests_total")
}

func TestSessionStoreEvictsIdleSessions(t *testing.T) {
	store := newSessionStore("")
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.open(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, 1, store.len())

	now = now.Add(sessionTTL + time.Minute)
	store.open(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, store.len())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "abc", formatValue([]byte("abc")))
	assert.Equal(t, "3.5", formatValue(3.5))
	assert.Equal(t, "2025-01-01T00:00:00Z", formatValue(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
