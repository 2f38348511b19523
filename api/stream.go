package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// handleStream serves the live display image as a multipart MJPEG
// stream. Each client blocks on the engine's image condition and
// receives every published frame exactly once; a slow client only
// delays itself.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Age", "0")
	w.Header().Set("Cache-Control", "no-cache, private")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=FRAME")

	var version uint64
	for {
		img, v, open := s.engine.WaitImage(version)
		if !open {
			return
		}
		version = v
		if r.Context().Err() != nil {
			log.Printf("[Stream] removed streaming client %s", r.RemoteAddr)
			return
		}
		if _, err := fmt.Fprintf(w, "--FRAME\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(img)); err != nil {
			log.Printf("[Stream] removed streaming client %s", r.RemoteAddr)
			return
		}
		if _, err := w.Write(img); err != nil {
			return
		}
		fmt.Fprint(w, "\r\n")
		flusher.Flush()
	}
}

// rectPercent expresses a rect as percentages of a reference extent, the
// form the frontend overlays expect.
type rectPercent struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func toPercent(left, top, width, height, refW, refH int) rectPercent {
	if refW <= 0 || refH <= 0 {
		return rectPercent{}
	}
	return rectPercent{
		Left:   100 * float64(left) / float64(refW),
		Top:    100 * float64(top) / float64(refH),
		Width:  100 * float64(width) / float64(refW),
		Height: 100 * float64(height) / float64(refH),
	}
}

// handleInfos streams per-frame diagnostics as server-sent events: an
// event fires after each processed frame, carrying the debug readout,
// the picker size while previewing and the calibration rectangles in
// percent once calibrated.
func (s *Server) handleInfos(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "text/event-stream")

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var lastFrame uint64
	for {
		select {
		case <-r.Context().Done():
			log.Printf("[Infos] removed event client %s", r.RemoteAddr)
			return
		case <-ticker.C:
		}

		st := s.engine.Status()
		if st.FrameCount == lastFrame {
			continue
		}
		lastFrame = st.FrameCount

		params := s.camera.Params()
		lastAnalysis := "--"
		if d := st.LastDetection; d != nil {
			switch {
			case d.Rect == nil:
				lastAnalysis = "No valid change detected"
			case d.SuggestedMin > 0:
				lastAnalysis = fmt.Sprintf("Changes detected in %v (suggest threshold %d..%d)", *d.Rect, d.SuggestedMin, d.SuggestedMax)
			default:
				lastAnalysis = fmt.Sprintf("Changes detected in %v", *d.Rect)
			}
		}
		data := map[string]any{
			"debug": map[string]string{
				"Processing time": fmt.Sprintf("%.2f ms", st.ProcTimeMillis),
				"Exposure time":   fmt.Sprintf("%.2f ms", float64(params.ExposureTime.Microseconds())/1e3),
				"Frames in slot":  fmt.Sprintf("%d/%d", st.SlotFill, st.SlotTarget),
				"Window":          fmt.Sprintf("%d/%d slots", st.HistoryFill, st.HistorySlots),
				"State":           st.State,
				"Last analysis":   lastAnalysis,
			},
		}
		if st.State == "preview" {
			set := s.engine.Settings()
			data["pickersize"] = map[string]float64{
				"width":  100 * float64(set.Locate.PickSize) / float64(params.Width),
				"height": 100 * float64(set.Locate.PickSize) / float64(params.Height),
			}
		}
		if st.Calibrated && st.State == "detect" {
			m := st.MirrorBounds
			c := st.CropBounds
			data["mirrorsize"] = toPercent(m.Left, m.Top, m.Width(), m.Height(), c.Width(), c.Height())
		}

		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("[Infos] failed to marshal event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			log.Printf("[Infos] removed event client %s", r.RemoteAddr)
			return
		}
		flusher.Flush()
	}
}
