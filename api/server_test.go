package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrange-dev/spotter/internal/analysis"
	"github.com/openrange-dev/spotter/internal/capture"
	"github.com/openrange-dev/spotter/internal/target"
	"github.com/openrange-dev/spotter/internal/targetdb"
)

type testRig struct {
	server *Server
	engine *analysis.Engine
	camera *capture.Emulator
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	cam := capture.NewEmulator(42)
	cam.SetResolution(400, 300)
	cam.SetNoise(0, 0)

	settings := analysis.DefaultSettings()
	settings.SlotFrames = 2
	engine := analysis.NewEngine(target.Default(), settings, nil)

	db, err := targetdb.NewDB(filepath.Join(t.TempDir(), "targets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testRig{
		server: NewServer(engine, cam, db),
		engine: engine,
		camera: cam,
	}
}

func (r *testRig) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	r.server.ServeMux().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "spotter", body["service"])
}

func TestHome(t *testing.T) {
	rig := newTestRig(t)

	rec := rig.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/stream.jpg")

	rec = rig.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShowSettings(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.do(t, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, float64(5), body["threshold"])
	assert.Equal(t, float64(2), body["average"])
	assert.Equal(t, "raw", body["display"])
	assert.Equal(t, "Start", body["mode"])
	assert.Equal(t, "default-11", body["target"])

	rec = rig.do(t, http.MethodPost, "/settings", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestApplySetting(t *testing.T) {
	rig := newTestRig(t)

	t.Run("integer value", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"threshold","value":12}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 12, rig.engine.Settings().Threshold)
	})

	t.Run("string-encoded integer", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"average","value":"7"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, rig.engine.Settings().SlotFrames)
	})

	t.Run("rejected value keeps prior", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"threshold","value":999}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 12, rig.engine.Settings().Threshold)
	})

	t.Run("contrast reaches the camera", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"contrast","value":30}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 30, rig.camera.Params().Contrast)

		rec = rig.do(t, http.MethodPost, "/setting", `{"param":"contrast","value":500}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("display mode", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"display","value":"diff"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, analysis.DisplayDiff, rig.engine.Settings().DisplayMode)
	})

	t.Run("keep calibration accepts bool and string", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"keep_calibration","value":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, rig.engine.Settings().KeepCalibration)

		rec = rig.do(t, http.MethodPost, "/setting", `{"param":"keep_calibration","value":"false"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, rig.engine.Settings().KeepCalibration)
	})

	t.Run("hole diameter with unit", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"hole_diameter","value":"0.22in"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = rig.do(t, http.MethodPost, "/setting", `{"param":"hole_diameter","value":"big"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("target switch", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"target","value":"air-rifle-10m"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "air-rifle-10m", rig.engine.Status().TargetName)

		rec = rig.do(t, http.MethodPost, "/setting", `{"param":"target","value":"clay-pigeon"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("correction object", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"correction","value":{"scale":1.2,"dx":3,"dy":-1}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		s := rig.engine.Settings()
		assert.Equal(t, 1.2, s.CorrScale)
		assert.Equal(t, 3, s.CorrDX)
		assert.Equal(t, -1, s.CorrDY)
	})

	t.Run("mode", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"mode","value":"start"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = rig.do(t, http.MethodPost, "/setting", `{"param":"mode","value":"sideways"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param":"warp","value":9}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := rig.do(t, http.MethodPost, "/setting", `{"param"`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTargetsList(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.do(t, http.MethodGet, "/api/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	decodeJSON(t, rec, &names)
	assert.Equal(t, []string{"air-rifle-10m", "pistol-25m", "precision-11"}, names)
}

func TestStatusEndpoint(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st analysis.Status
	decodeJSON(t, rec, &st)
	assert.Equal(t, "preview", st.State)
	assert.False(t, st.Calibrated)
}

func TestMarksEndpoint(t *testing.T) {
	rig := newTestRig(t)

	rec := rig.do(t, http.MethodGet, "/api/marks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = rig.do(t, http.MethodPost, "/api/marks", `{"action":"delete","id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = rig.do(t, http.MethodPost, "/api/marks", `{"action":"teleport","id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = rig.do(t, http.MethodPost, "/api/marks", `{"action":"clear"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// calibrate drives the engine through calibration on the emulated scene.
func (r *testRig) calibrate(t *testing.T) {
	t.Helper()
	require.NoError(t, r.engine.Command("start"))
	r.engine.Analyse(r.camera.Frame())
	require.True(t, r.engine.Status().Calibrated)
}

func TestPlot(t *testing.T) {
	rig := newTestRig(t)

	rec := rig.do(t, http.MethodGet, "/api/plot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "plot requires calibration")

	rig.calibrate(t)
	rec = rig.do(t, http.MethodGet, "/api/plot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestToPercent(t *testing.T) {
	p := toPercent(25, 50, 50, 100, 100, 200)
	assert.Equal(t, 25.0, p.Left)
	assert.Equal(t, 25.0, p.Top)
	assert.Equal(t, 50.0, p.Width)
	assert.Equal(t, 50.0, p.Height)

	assert.Equal(t, rectPercent{}, toPercent(1, 1, 1, 1, 0, 10))
}

func TestStreamDeliversFrames(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Analyse(rig.camera.Frame()) // publish one preview image

	srv := httptest.NewServer(LoggingMiddleware(rig.server.ServeMux()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	// Unblock the handler once the first part has been read.
	go func() {
		time.Sleep(300 * time.Millisecond)
		rig.engine.Close()
	}()

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--FRAME", strings.TrimSpace(line))
	line, err = br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "image/jpeg")
}

func TestInfosSendsEvents(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Analyse(rig.camera.Frame())

	srv := httptest.NewServer(rig.server.ServeMux())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/infos", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var event struct {
		Debug      map[string]string  `json:"debug"`
		PickerSize map[string]float64 `json:"pickersize"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
	assert.Equal(t, "preview", event.Debug["State"])
	assert.Contains(t, event.Debug, "Frames in slot")
	assert.NotEmpty(t, event.PickerSize, "preview events carry the picker size")
}
