package fiscal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comercia/comercia/internal/shared"
)

type staticProfiles struct {
	profile TaxProfile
}

func (s staticProfiles) Profile(ctx context.Context, scope shared.Scope, kind string, id int64) (TaxProfile, error) {
	if kind != "company" || id != 1 {
		return TaxProfile{}, shared.ErrNotFound
	}
	return s.profile, nil
}

func previewRouter(profiles ProfileSource) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.Default(), profiles).MountRoutes(r)
	return r
}

func doPreview(t *testing.T, h http.Handler, scope shared.Scope, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/fiscal/preview", strings.NewReader(body))
	req = req.WithContext(shared.ContextWithScope(req.Context(), scope))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPreviewWithStoredCounterparty(t *testing.T) {
	h := previewRouter(staticProfiles{profile: largeTaxpayerClient()})
	scope := shared.Scope{WorkspaceID: uuid.New()}
	body := `{"gross":"10000000","seller":{"person_type":"natural","regime":"ordinario","autorretenedor":false,"gran_contribuyente":false,"agente_retenedor":false,"responsable_iva":true,"ica_activity_code":"7110"},"counterparty":{"kind":"company","id":1}}`

	rec := doPreview(t, h, scope, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "10446000", got["net"])
	assert.Equal(t, false, got["estimated"])
	assert.NotEmpty(t, got["net_display"])
}

func TestPreviewRejectsNonPositiveGross(t *testing.T) {
	h := previewRouter(nil)
	rec := doPreview(t, h, shared.Scope{WorkspaceID: uuid.New()}, `{"gross":"0","seller":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewRequiresWorkspace(t *testing.T) {
	h := previewRouter(nil)
	rec := doPreview(t, h, shared.Scope{}, `{"gross":"1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
