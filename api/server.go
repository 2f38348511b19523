// Package api exposes the spotter's result surface over HTTP: the MJPEG
// stream, server-sent info events, settings, calibration and mark edit
// endpoints. All handlers read consistent snapshots from the engine;
// none of them ever block the analysis thread.
package api

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/openrange-dev/spotter/internal/analysis"
	"github.com/openrange-dev/spotter/internal/capture"
	"github.com/openrange-dev/spotter/internal/targetdb"
	"github.com/openrange-dev/spotter/internal/units"
	"github.com/openrange-dev/spotter/internal/version"
)

//go:embed static/*
var staticFiles embed.FS

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine  *analysis.Engine
	camera  capture.Source
	targets *targetdb.DB
}

func NewServer(engine *analysis.Engine, camera capture.Source, targets *targetdb.DB) *Server {
	return &Server{
		engine:  engine,
		camera:  camera,
		targets: targets,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.jpg", s.handleStream)
	mux.HandleFunc("/infos", s.handleInfos)
	mux.HandleFunc("/settings", s.showSettings)
	mux.HandleFunc("/setting", s.applySetting)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/marks", s.handleMarks)
	mux.HandleFunc("/api/targets", s.handleTargets)
	mux.HandleFunc("/api/plot", s.handlePlot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleHome)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "missing UI page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "spotter", "version": %q, "timestamp": %q}`,
		version.String(), time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.engine.Status())
}

// showSettings reports the operator-visible settings plus camera
// parameters.
func (s *Server) showSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	set := s.engine.Settings()
	st := s.engine.Status()
	mode := "Start"
	if st.State != "preview" {
		mode = "Stop"
	}
	s.writeJSON(w, map[string]any{
		"contrast":         s.camera.Params().Contrast,
		"threshold":        set.Threshold,
		"average":          set.SlotFrames,
		"mode":             mode,
		"display":          set.DisplayMode.String(),
		"keep_calibration": set.KeepCalibration,
		"target":           st.TargetName,
		"corr_scale":       set.CorrScale,
		"corr_dx":          set.CorrDX,
		"corr_dy":          set.CorrDY,
	})
}

// settingRequest is one {param, value} update. Values arrive as strings
// or numbers depending on the client; both are accepted.
type settingRequest struct {
	Param string          `json:"param"`
	Value json.RawMessage `json:"value"`
}

func (r settingRequest) intValue() (int, error) {
	var n int
	if err := json.Unmarshal(r.Value, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return strconv.Atoi(s)
	}
	return 0, fmt.Errorf("value %s is not an integer", r.Value)
}

func (r settingRequest) stringValue() (string, error) {
	var s string
	if err := json.Unmarshal(r.Value, &s); err != nil {
		return "", fmt.Errorf("value %s is not a string", r.Value)
	}
	return s, nil
}

func (r settingRequest) boolValue() (bool, error) {
	var b bool
	if err := json.Unmarshal(r.Value, &b); err == nil {
		return b, nil
	}
	s, err := r.stringValue()
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(s)
}

func (r settingRequest) floatValue() (float64, error) {
	var f float64
	if err := json.Unmarshal(r.Value, &f); err == nil {
		return f, nil
	}
	s, err := r.stringValue()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// applySetting mutates one engine or camera tunable. Invalid values are
// rejected at this boundary; the prior value is retained.
func (s *Server) applySetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var err error
	switch req.Param {
	case "contrast":
		var v int
		if v, err = req.intValue(); err == nil {
			err = s.camera.SetContrast(v)
		}
	case "threshold":
		var v int
		if v, err = req.intValue(); err == nil {
			err = s.engine.SetThreshold(v)
		}
	case "average":
		var v int
		if v, err = req.intValue(); err == nil {
			err = s.engine.SetSlotFrames(v)
		}
	case "mode":
		var v string
		if v, err = req.stringValue(); err == nil {
			err = s.engine.Command(v)
		}
	case "display":
		var v string
		if v, err = req.stringValue(); err == nil {
			err = s.engine.SetDisplayMode(v)
		}
	case "keep_calibration":
		var v bool
		if v, err = req.boolValue(); err == nil {
			s.engine.SetKeepCalibration(v)
		}
	case "hole_diameter":
		// Accepts a length with unit suffix, e.g. "5.6mm" or "0.22in".
		var v string
		if v, err = req.stringValue(); err == nil {
			var mm float64
			if mm, err = units.ParseLength(v); err == nil {
				err = s.engine.SetHoleDiameter(mm)
			}
		}
	case "target":
		var v string
		if v, err = req.stringValue(); err == nil {
			err = s.selectTarget(v)
		}
	case "correction":
		var obj struct {
			Scale float64 `json:"scale"`
			DX    int     `json:"dx"`
			DY    int     `json:"dy"`
		}
		if err = json.Unmarshal(req.Value, &obj); err == nil {
			err = s.engine.SetCorrection(obj.Scale, obj.DX, obj.DY)
		}
	default:
		err = fmt.Errorf("unknown parameter %q", req.Param)
	}

	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"result": "ok"})
}

func (s *Server) selectTarget(name string) error {
	if s.targets == nil {
		return fmt.Errorf("no target database configured")
	}
	t, err := s.targets.Load(name)
	if err != nil {
		return err
	}
	return s.engine.SetTarget(t)
}

// handleMarks lists confirmed marks on GET and applies edit operations
// on POST: delete, move (with x/y) or duplicate, all by mark ID.
func (s *Server) handleMarks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.engine.Status().Marks)
	case http.MethodPost:
		var req struct {
			Action string `json:"action"`
			ID     string `json:"id"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		var ok bool
		switch req.Action {
		case "delete":
			ok = s.engine.DeleteMark(req.ID)
		case "move":
			ok = s.engine.MoveMark(req.ID, req.X, req.Y)
		case "duplicate":
			_, ok = s.engine.DuplicateMark(req.ID)
		case "clear":
			s.engine.ClearMarks()
			ok = true
		default:
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
			return
		}
		if !ok {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no mark with id %q", req.ID))
			return
		}
		s.writeJSON(w, map[string]string{"result": "ok"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.targets == nil {
		s.writeJSON(w, []string{})
		return
	}
	names, err := s.targets.List()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list targets: %v", err))
		return
	}
	s.writeJSON(w, names)
}
