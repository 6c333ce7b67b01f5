package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/reports"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

type fakeStore struct{}

func (fakeStore) Snapshot(context.Context, domain.Date) (postgres.Snapshot, error) {
	return postgres.Snapshot{PersonCount: 3, ActivePolicies: 2, ExpiredPolicies: 1, ClaimsSumYTD: 150000}, nil
}

func (fakeStore) ActiveByProduct(context.Context, domain.Date) ([]postgres.LabelValue, error) {
	return []postgres.LabelValue{{Label: "Cestovní; roční", Value: 2}}, nil
}

func (fakeStore) MonthlyNewPolicies(context.Context) ([]postgres.SeriesPoint, error) {
	return []postgres.SeriesPoint{{Period: "2024-05", Count: 1}}, nil
}

func (fakeStore) ClaimsByState(context.Context) ([]postgres.ClaimAggregate, error) {
	return []postgres.ClaimAggregate{{State: domain.ClaimNew, Count: 1, Sum: 150000, Average: 150000}}, nil
}

func (fakeStore) TopCities(context.Context, int) ([]postgres.CityCount, error) {
	return []postgres.CityCount{{City: "Praha", Count: 2}}, nil
}

func (fakeStore) ClaimsByYear(context.Context) ([]postgres.LabelValue, error) {
	return []postgres.LabelValue{{Label: "2024", Value: 1}}, nil
}

type fakeDelivery struct {
	keys []string
}

func (f *fakeDelivery) UploadCSV(_ context.Context, key string, data []byte) (reports.Upload, error) {
	f.keys = append(f.keys, key)
	return reports.Upload{Key: key, URL: "https://exports.example/" + key, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func router(svc *reports.Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, nil, nil).Routes(r)
	return r
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestDashboard(t *testing.T) {
	h := router(reports.NewService(reports.Options{Store: fakeStore{}}))

	rr := do(h, http.MethodGet, "/v1/reports")
	require.Equal(t, http.StatusOK, rr.Code)
	var d reports.Dashboard
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&d))
	assert.Equal(t, int64(3), d.Snapshot.PersonCount)
	require.Len(t, d.TopCities, 1)
}

func TestDownload(t *testing.T) {
	h := router(reports.NewService(reports.Options{Store: fakeStore{}}))

	rr := do(h, http.MethodGet, "/v1/reports/export")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=UTF-8", rr.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="report-\d{4}-\d{2}-\d{2}\.csv"$`, rr.Header().Get("Content-Disposition"))
	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "\uFEFF"))
	assert.Contains(t, body, `"Cestovní; roční"`)

	rr = do(h, http.MethodGet, "/v1/reports/export?type=top-cities")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "report-top-cities-")

	rr = do(h, http.MethodGet, "/v1/reports/export?type=bogus")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublish(t *testing.T) {
	rr := do(router(reports.NewService(reports.Options{Store: fakeStore{}})), http.MethodPost, "/v1/reports/export")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "UNAVAILABLE")

	delivery := &fakeDelivery{}
	h := router(reports.NewService(reports.Options{Store: fakeStore{}, Delivery: delivery}))
	rr = do(h, http.MethodPost, "/v1/reports/export?type=claims-by-state")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, delivery.keys, 1)
	assert.Regexp(t, `^reports/[0-9A-Z]{26}\.csv$`, delivery.keys[0])
	var up reports.Upload
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&up))
	assert.Equal(t, delivery.keys[0], up.Key)
}
