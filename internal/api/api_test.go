package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-telemetry/internal/engine"
	"github.com/celerix-dev/celerix-telemetry/internal/places"
	"github.com/celerix-dev/celerix-telemetry/internal/telemetry"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	result []schema.PointOfInterest
	err    error
}

func (f stubFinder) NearbyPlaces(ctx context.Context, lat, lon float64) ([]schema.PointOfInterest, error) {
	return f.result, f.err
}

func setupTestRouter(finder places.Finder) (*gin.Engine, *engine.DocStore) {
	gin.SetMode(gin.TestMode)
	store := engine.NewDocStore(nil, nil)
	h := &Handler{
		Service:  telemetry.NewService(store, finder, nil),
		Adjuster: telemetry.NewAdjuster(store, nil),
		Store:    store,
	}
	r := gin.New()
	h.RegisterRoutes(r)
	return r, store
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func idFromResult(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var res map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	msg := res["result"]
	require.True(t, strings.HasPrefix(msg, "Message with ID: ") && strings.HasSuffix(msg, " added."), msg)
	return strings.TrimSuffix(strings.TrimPrefix(msg, "Message with ID: "), " added.")
}

const exampleBody = `{"payload":[
	{"name":"location","values":{"longitude":-0.1,"latitude":51.5},"time":1700000000000000000},
	{"name":"bluetooth","values":{"id":"AA:BB"}}
]}`

func TestAddSensorData(t *testing.T) {
	r, store := setupTestRouter(stubFinder{result: []schema.PointOfInterest{{Address: "Tower Bridge", Longitude: -0.07, Latitude: 51.5}}})

	w := do(r, "POST", "/addSensorData?uid=u1", exampleBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := idFromResult(t, w)

	doc, err := store.Get(context.Background(), "users/u1/sensor-data/"+id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lat": 51.5, "lon": -0.1}, doc["location"])
	assert.Len(t, doc["nearbyAttractions"], 1)
	assert.Equal(t, int64(1_700_000_000_000), doc["time"].(time.Time).UnixMilli())
}

func TestAddSensorData_MissingUID(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})

	w := do(r, "POST", "/addSensorData", exampleBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User ID is required.", w.Body.String())
	assert.Empty(t, store.Partitions(), "no write may happen without a uid")
}

func TestAddSensorData_InvalidPayload(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})

	for _, body := range []string{
		`{"payload":[]}`,
		`{}`,
		`not json`,
		`{"payload":[{"name":"location","values":{"longitude":1},"time":1}]}`,
	} {
		w := do(r, "POST", "/addSensorData?uid=u1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.True(t, strings.HasPrefix(w.Body.String(), "Invalid payload"), w.Body.String())
	}
	assert.Empty(t, store.Partitions())
}

func TestAddSensorData_ProviderDown(t *testing.T) {
	r, store := setupTestRouter(stubFinder{err: places.ErrUnavailable})

	w := do(r, "POST", "/addSensorData?uid=u1", exampleBody)
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := store.Get(context.Background(), "users/u1/sensor-data/"+idFromResult(t, w))
	require.NoError(t, err)
	assert.Equal(t, []any{}, doc["nearbyAttractions"])
}

func TestAddSensorDataDeferred(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})

	w := do(r, "POST", "/addSensorDataDeferred", exampleBody)
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := store.Get(context.Background(), "sensor-data/"+idFromResult(t, w))
	require.NoError(t, err)
	assert.NotContains(t, doc, "nearbyAttractions")
	assert.Equal(t, []any{"AA:BB"}, doc["nearbyDevices"])
}

func TestTestFunction(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})

	w := do(r, "POST", "/testFunction", `{"payload":{"hello":"world"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := store.Get(context.Background(), "example-data/"+idFromResult(t, w))
	require.NoError(t, err)
	assert.Equal(t, "world", doc["hello"])

	w = do(r, "POST", "/testFunction", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjustTimestamps(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000).UTC()
	id, err := store.Add(ctx, sdk.UserSensorData("u1"), map[string]any{"time": ts})
	require.NoError(t, err)
	_, err = store.Add(ctx, sdk.UserSensorData("u1"), map[string]any{"note": "no time"})
	require.NoError(t, err)

	w := do(r, "POST", "/adjustTimestamps?uid=u1", `{"minutes":60}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Timestamps adjusted for 1 documents."}`, w.Body.String())

	doc, _ := store.Get(ctx, sdk.UserSensorData("u1")+"/"+id)
	assert.Equal(t, ts.UnixMilli()-3_600_000, doc["time"].(time.Time).UnixMilli())
}

func TestAdjustTimestamps_NoDocuments(t *testing.T) {
	r, _ := setupTestRouter(stubFinder{})

	w := do(r, "POST", "/adjustTimestamps?uid=ghost", `{"minutes":60}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No documents found for user: ghost"}`, w.Body.String())
}

func TestAdjustTimestamps_BadRequests(t *testing.T) {
	r, _ := setupTestRouter(stubFinder{})

	w := do(r, "POST", "/adjustTimestamps", `{"minutes":60}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User ID is required.", w.Body.String())

	w = do(r, "POST", "/adjustTimestamps?uid=u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Minutes are required.", w.Body.String())

	w = do(r, "POST", "/adjustTimestamps?uid=u1", `{"minutes":1e20}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Invalid payload: "), w.Body.String())
}

func TestAdjustTimestamps_CommitFailure(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000).UTC()
	for i := 0; i <= sdk.MaxBatchWrites; i++ {
		_, err := store.Add(ctx, sdk.UserSensorData("big"), map[string]any{"time": ts})
		require.NoError(t, err)
	}

	w := do(r, "POST", "/adjustTimestamps?uid=big", `{"minutes":60}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", w.Body.String())
}

func TestGetDocuments(t *testing.T) {
	r, store := setupTestRouter(stubFinder{})
	ctx := context.Background()
	id, err := store.Add(ctx, "sensor-data", map[string]any{"nearbyDevices": []any{"AA"}})
	require.NoError(t, err)

	w := do(r, "GET", "/api/docs/sensor-data/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nearbyDevices":["AA"]}`, w.Body.String())

	w = do(r, "GET", "/api/docs/sensor-data", "")
	require.Equal(t, http.StatusOK, w.Code)
	var docs []sdk.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)

	w = do(r, "GET", "/api/docs/sensor-data/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, "GET", "/api/docs/users//x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter(stubFinder{})
	w := do(r, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
