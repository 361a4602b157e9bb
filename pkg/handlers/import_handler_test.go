package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/config"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
	"github.com/sheetline-inc/sheetline-engine/pkg/services"
	"github.com/sheetline-inc/sheetline-engine/pkg/services/workqueue"
)

type fakeReader struct {
	sheets []models.SheetData
	err    error
}

func (f *fakeReader) Read(io.Reader) ([]models.SheetData, error) {
	return f.sheets, f.err
}

type fakeCatalog struct {
	snapshot models.CatalogSnapshot
}

func (f *fakeCatalog) Snapshot(context.Context) (models.CatalogSnapshot, error) {
	return f.snapshot, nil
}

type fakeExecutor struct {
	plans chan models.CommitPlan
	fail  bool
}

func (f *fakeExecutor) Apply(_ context.Context, plan models.CommitPlan, report func(string, bool, string)) error {
	for _, sheet := range plan.Sheets {
		if f.fail {
			report(sheet.SheetName, false, "insert failed")
		} else {
			report(sheet.SheetName, true, "")
		}
	}
	if f.plans != nil {
		f.plans <- plan
	}
	return nil
}

type testEnv struct {
	mux      *http.ServeMux
	session  *services.ImportSession
	queue    *workqueue.Queue
	executor *fakeExecutor
}

func newTestEnv(t *testing.T, sheets []models.SheetData) *testEnv {
	t.Helper()

	session := services.NewImportSession(zap.NewNop())
	queue := workqueue.New(zap.NewNop(), workqueue.WithStrategy(workqueue.NewPooledStrategy(2)))
	analysis := services.NewAnalysisService(session, queue, 3, zap.NewNop())

	catalog := &fakeCatalog{snapshot: models.CatalogSnapshot{
		Tables: map[string]models.CatalogTable{
			"loans": {
				TableName: "loans",
				Columns: []models.CatalogColumn{
					{ColumnName: "loan_id", DataType: "character varying"},
					{ColumnName: "amount", DataType: "numeric", IsNullable: true},
				},
			},
		},
	}}
	exec := &fakeExecutor{plans: make(chan models.CommitPlan, 1)}

	h := NewImportHandler(session, analysis, &fakeReader{sheets: sheets}, catalog, exec, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{mux: mux, session: session, queue: queue, executor: exec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) uploadAndWait(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/import/upload", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.queue.Wait(ctx))
}

func testSheets() []models.SheetData {
	return []models.SheetData{{
		SheetName: "Loans",
		Headers:   []string{"Loan ID", "Amount"},
		SampleRows: []map[string]any{
			{"Loan ID": "L-001", "Amount": "1500.50"},
			{"Loan ID": "L-002", "Amount": "980"},
		},
		RowCount: 2,
	}}
}

func TestImportHandler_UploadAndState(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodGet, "/api/import/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.BatchSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.BatchReview, snap.Status)
	require.Len(t, snap.Sheets, 1)
	assert.Equal(t, "loans", snap.Sheets[0].SelectedTable)
}

func TestImportHandler_UploadRejectsBadWorkbook(t *testing.T) {
	session := services.NewImportSession(zap.NewNop())
	queue := workqueue.New(zap.NewNop())
	analysis := services.NewAnalysisService(session, queue, 3, zap.NewNop())

	h := NewImportHandler(session, analysis,
		&fakeReader{err: io.ErrUnexpectedEOF},
		&fakeCatalog{}, &fakeExecutor{}, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", bytes.NewReader([]byte("junk")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHandler_ReviewFlow(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/sheets/Loans/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/import/sheets/Loans/columns/Amount/review",
		reviewRequest{Status: models.ReviewRejected})
	require.Equal(t, http.StatusOK, rec.Code)

	status, err := env.session.SheetReviewStatus("Loans")
	require.NoError(t, err)
	assert.Equal(t, models.SheetReviewPartiallyApproved, status)
}

func TestImportHandler_ReviewUnknownSheet(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/sheets/Ghost/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportHandler_SelectTableRequiresName(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/sheets/Loans/table", selectTableRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHandler_SelectTableReanalyzes(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/sheets/Loans/table",
		selectTableRequest{TableName: "loan_archive", IsNewTable: true})
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.queue.Wait(ctx))

	snap := env.session.Snapshot()
	require.Len(t, snap.Sheets, 1)
	assert.Equal(t, "loan_archive", snap.Sheets[0].SelectedTable)
	assert.True(t, snap.Sheets[0].IsNewTable)
}

func TestImportHandler_ModifyMapping(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	col := "amount"
	rec := env.do(t, http.MethodPost, "/api/import/sheets/Loans/columns/Amount/mapping",
		modifyMappingRequest{Action: models.ActionMap, MappedColumn: &col})
	require.Equal(t, http.StatusOK, rec.Code)

	snap := env.session.Snapshot()
	for _, m := range snap.Sheets[0].Mappings {
		if m.Header == "Amount" {
			assert.Equal(t, models.ReviewModified, m.ReviewStatus)
		}
	}
}

func TestImportHandler_CommitRejectsPendingReview(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/commit", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHandler_CommitRunsExecutor(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/import/sheets/Loans/approve", nil).Code)

	rec := env.do(t, http.MethodPost, "/api/import/commit", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case plan := <-env.executor.plans:
		require.Len(t, plan.Sheets, 1)
		assert.Equal(t, "loans", plan.Sheets[0].TargetTable)
	case <-time.After(5 * time.Second):
		t.Fatal("executor was never invoked")
	}

	require.Eventually(t, func() bool {
		return env.session.Status() == models.BatchComplete
	}, 5*time.Second, 10*time.Millisecond)
}

func TestImportHandler_Reset(t *testing.T) {
	env := newTestEnv(t, testSheets())
	env.uploadAndWait(t)

	rec := env.do(t, http.MethodPost, "/api/import/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.BatchIdle, env.session.Status())
}

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{Version: "test", Env: "test"}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "sheetline-engine", health.Service)
	assert.Equal(t, "test", health.Version)
}
