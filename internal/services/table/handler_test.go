package table

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/web"
)

func TestHandlerTableLifecycle(t *testing.T) {
	f := newFixture(t)
	log := logger.NewWithWriter("test", io.Discard, slog.LevelError)
	router := web.NewRouter(log, nil, NewHandler(f.service, log))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set(web.HeaderTenantID, "acme")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/tables", `{"outlet_id":"main","table_number":"T1","capacity":4}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Data models.Table `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	steps := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/tables/" + created.Data.ID + "/assign", `{"party_size":9}`, http.StatusBadRequest},
		{http.MethodPost, "/tables/" + created.Data.ID + "/assign", `{"party_size":3}`, http.StatusOK},
		{http.MethodPatch, "/tables/" + created.Data.ID + "/status", `{"status":"AVAILABLE"}`, http.StatusBadRequest},
		{http.MethodPost, "/tables/" + created.Data.ID + "/release", "", http.StatusOK},
		{http.MethodGet, "/tables/statistics?outlet_id=main", "", http.StatusOK},
		{http.MethodGet, "/tables/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/tables/" + created.Data.ID, "", http.StatusOK},
	}
	for _, step := range steps {
		if rec := do(step.method, step.path, step.body); rec.Code != step.want {
			t.Fatalf("%s %s = %d, want %d (%s)", step.method, step.path, rec.Code, step.want, rec.Body.String())
		}
	}
}
