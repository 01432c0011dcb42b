package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/never2/internal/api"
	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

func newHandler(t *testing.T) (http.Handler, *session.Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	conf := scene.DefaultConfig()
	conf.InputDim = network.Shape{2}
	s := session.New(ctx, catalog.Default(), nil, session.Config{
		Scene:          conf,
		CommandTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return api.New(s), s
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) scene.Snapshot {
	t.Helper()
	var snap scene.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestHealthAndCatalog(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cat struct {
		Blocks     []catalog.BlockSpec `json:"blocks"`
		Properties []string            `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))
	assert.NotEmpty(t, cat.Blocks)
	assert.Contains(t, cat.Properties, "Box")
}

func TestLayerLifecycle(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{
		"signature": "Linear:FullyConnected",
		"values":    map[string]string{"out_features": "3"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap := decodeSnapshot(t, rec)
	require.Len(t, snap.Blocks, 3)
	first := snap.Blocks[1].ID

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{"signature": "Nonlinear:ReLU"})
	require.Equal(t, http.StatusCreated, rec.Code)
	last := decodeSnapshot(t, rec).Blocks[2].ID

	rec = do(t, h, http.MethodPatch, "/v1/scene/layers/"+first, map[string]interface{}{
		"values": map[string]string{"out_features": "4"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/scene/layers/"+last, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeSnapshot(t, rec).Blocks, 3)

	rec = do(t, h, http.MethodPatch, "/v1/scene/layers/"+first, map[string]interface{}{
		"values": map[string]string{"out_features": "4"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/v1/scene/layers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/scene/layers/"+scene.InputBlockID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/scene/layers/"+first+"?confirm=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorOf(t, rec), "signature")

	req := httptest.NewRequest(http.MethodPost, "/v1/scene/layers", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{
		"signature": "Linear:FullyConnected",
		"values":    map[string]string{"out_features": "many"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/scene/input", map[string]interface{}{"identifier": "X", "dimension": []int{0}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/scene/input", map[string]interface{}{"identifier": "In", "dimension": []int{4}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "In", decodeSnapshot(t, rec).Blocks[0].Identifier)
}

func TestPropertiesAndConfirmation(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/scene/properties/pre", map[string]interface{}{
		"kind": "Box", "lower": []float64{0, 0}, "upper": []float64{1, 1},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "properties need a network")

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{"signature": "Nonlinear:ReLU"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/scene/properties/pre", map[string]interface{}{
		"kind": "polyhedral", "expression": "X_0 >= -1 AND X_1 <= 1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decodeSnapshot(t, rec)
	require.NotNil(t, snap.Pre)
	assert.Contains(t, snap.Pre.SMT, "(>= X_0 -1)")

	rec = do(t, h, http.MethodPost, "/v1/scene/properties/post", map[string]interface{}{
		"kind": "Classification", "target": "Y_0",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{"signature": "Nonlinear:Tanh"})
	require.Equal(t, http.StatusOK, rec.Code)
	var declined map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &declined))
	assert.Equal(t, true, declined["declined"])

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{"signature": "Nonlinear:Tanh", "confirm": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	snap = decodeSnapshot(t, rec)
	assert.Nil(t, snap.Post)
	assert.NotNil(t, snap.Pre)

	rec = do(t, h, http.MethodDelete, "/v1/scene/properties/pre", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeSnapshot(t, rec).Pre)

	rec = do(t, h, http.MethodPost, "/v1/scene/properties/middle", map[string]interface{}{"kind": "Box"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/scene/properties/pre", map[string]interface{}{"kind": "Fuzzy"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProjectEndpoints(t *testing.T) {
	h, _ := newHandler(t)
	path := filepath.Join(t.TempDir(), "model.yaml")

	rec := do(t, h, http.MethodPost, "/v1/project/save", map[string]string{"path": path})
	assert.Equal(t, http.StatusConflict, rec.Code, "an empty network cannot be saved")

	rec = do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{
		"signature": "Linear:FullyConnected",
		"values":    map[string]string{"out_features": "2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/project/save", map[string]string{"path": path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/scene/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeSnapshot(t, rec).Blocks, 2)

	rec = do(t, h, http.MethodPost, "/v1/project/open", map[string]string{"path": path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeSnapshot(t, rec).Blocks, 3)

	rec = do(t, h, http.MethodPost, "/v1/project/open", map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing.yaml"), "confirm": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/project/open", map[string]interface{}{"path": "model.onnx", "confirm": true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestJobEndpoints(t *testing.T) {
	h, s := newHandler(t)
	s.Runner().RegisterVerifier("fake", jobs.VerifierFunc(func(_ context.Context, _ *jobs.Request, _ *slog.Logger) (*jobs.Verdict, error) {
		return &jobs.Verdict{Safe: true}, nil
	}))

	rec := do(t, h, http.MethodGet, "/v1/jobs/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/jobs/sing", map[string]string{"strategy": "fake"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/jobs/verify", map[string]string{"strategy": "fake"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	do(t, h, http.MethodPost, "/v1/scene/layers", map[string]interface{}{"signature": "Nonlinear:ReLU"})
	do(t, h, http.MethodPost, "/v1/scene/properties/post", map[string]interface{}{"kind": "Classification", "target": "Y_1"})

	rec = do(t, h, http.MethodPost, "/v1/jobs/verify", map[string]string{"strategy": "other"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/jobs/verify", map[string]string{"strategy": "fake"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/v1/jobs/current", nil)
		var cur jobs.Job
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &cur) != nil {
			return false
		}
		return cur.ID == job.ID && cur.Status == jobs.StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchScene(t *testing.T) {
	h, _ := newHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/scene/watch"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev session.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Command)
	require.NotNil(t, ev.Scene)
	assert.Len(t, ev.Scene.Blocks, 2)

	resp, err := http.Post(srv.URL+"/v1/scene/layers", "application/json",
		strings.NewReader(`{"signature": "Nonlinear:ReLU"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "append_layer", ev.Command)
	require.NotNil(t, ev.Scene)
	assert.Len(t, ev.Scene.Blocks, 3)
}
