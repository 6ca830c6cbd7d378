package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comercia/comercia/internal/fiscal"
	"github.com/comercia/comercia/internal/shared"
)

func (f *pipelineFixture) serve(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(slog.Default(), f.svc).MountRoutes(r)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.ContextWithScope(req.Context(), f.scope))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func oppPath(id int64, suffix string) string {
	return "/opportunities/" + strconv.FormatInt(id, 10) + suffix
}

func TestHandlerWinReportsMissingFiscalData(t *testing.T) {
	f := newPipelineFixture(t)
	incomplete := f.parties.records[f.company]
	incomplete.Profile.Regime = ""
	f.parties.records[f.company] = incomplete
	o := f.opportunity(t, 500)

	rec := f.serve(t, http.MethodPost, oppPath(o.ID, "/win"), "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, []any{fiscal.FieldRegime}, problem["missing"])

	rec = f.serve(t, http.MethodPost, oppPath(o.ID, "/win"), `{"fiscal_patch":{"regime":"ordinario"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.serve(t, http.MethodGet, oppPath(o.ID, "/project"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, o.ID, p.OpportunityID)
}

func TestHandlerWinAcceptsChunkedEmptyBody(t *testing.T) {
	f := newPipelineFixture(t)
	o := f.opportunity(t, 500)

	r := chi.NewRouter()
	NewHandler(slog.Default(), f.svc).MountRoutes(r)
	req := httptest.NewRequest(http.MethodPost, oppPath(o.ID, "/win"), io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req = req.WithContext(shared.ContextWithScope(req.Context(), f.scope))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerCreateAdvanceLose(t *testing.T) {
	f := newPipelineFixture(t)

	rec := f.serve(t, http.MethodPost, "/opportunities", `{"company_id":10,"description":"Diseño bodega","estimated_value":2500000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, StageNew, o.Stage)

	rec = f.serve(t, http.MethodPost, oppPath(o.ID, "/advance"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.serve(t, http.MethodPost, oppPath(o.ID, "/lose"), `{"reason":"capricho"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.serve(t, http.MethodPost, oppPath(o.ID, "/lose"), `{"reason":"precio"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.serve(t, http.MethodPost, oppPath(o.ID, "/win"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRequiresWorkspace(t *testing.T) {
	f := newPipelineFixture(t)
	f.scope = shared.Scope{}
	rec := f.serve(t, http.MethodGet, "/opportunities/1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
