// Package handlers serves the device status page. Handlers only read the
// core's published snapshot; they never touch the capture or inference path.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/classify"
	"github.com/Brownie44l1/edge-classifier/internal/interpret"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/version"
)

// Source is the read side of classify.Core.
type Source interface {
	Latest() (interpret.Result, bool)
	Stats() classify.Stats
	LastFrame(dst []byte) (classify.FrameInfo, []byte)
}

// ClassScore is one entry of StatusResponse.Scores.
type ClassScore struct {
	Score   int8    `json:"score"`
	Percent float32 `json:"percent"`
}

// StatsResponse mirrors classify.Stats for clients.
type StatsResponse struct {
	TotalInferences  uint64  `json:"total_inferences"`
	AvgTimeMs        float64 `json:"avg_time_ms"`
	LastTimeMs       float64 `json:"last_time_ms"`
	CaptureFailures  uint64  `json:"capture_failures"`
	FormatMismatches uint64  `json:"format_mismatches"`
	InvokeFailures   uint64  `json:"invoke_failures"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Prediction     string                `json:"prediction"`
	Confidence     float32               `json:"confidence"`
	ConfidenceKind string                `json:"confidence_kind"`
	Scores         map[string]ClassScore `json:"scores"`
	Seq            uint64                `json:"seq"`
	UpdatedAt      *time.Time            `json:"updated_at,omitempty"`
	Stats          StatsResponse         `json:"stats"`
	Session        string                `json:"session"`
	Version        string                `json:"version"`
}

type Handler struct {
	src     Source
	labels  []string
	session uuid.UUID
	started time.Time
	log     *logrus.Entry

	// frame is reused across /capture.jpg requests.
	frameMu sync.Mutex
	frame   []byte
}

// NewHandler serves src. labels names the model's classes by output index.
func NewHandler(src Source, labels []string, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		src:     src,
		labels:  labels,
		session: uuid.New(),
		started: time.Now(),
		log:     log,
	}
}

// Session identifies this process run in status responses.
func (h *Handler) Session() uuid.UUID { return h.session }

// Status reports the latest classification and running counters. Before the
// first successful cycle the prediction is "none".
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := h.src.Stats()
	resp := StatusResponse{
		Prediction: "none",
		Scores:     map[string]ClassScore{},
		Stats: StatsResponse{
			TotalInferences:  st.Inferences,
			AvgTimeMs:        millis(st.AverageLatency()),
			LastTimeMs:       millis(st.LastLatency),
			CaptureFailures:  st.CaptureFailures,
			FormatMismatches: st.FormatMismatches,
			InvokeFailures:   st.InvokeFailures,
		},
		Session: h.session.String(),
		Version: version.Version,
	}

	if res, ok := h.src.Latest(); ok {
		resp.Prediction = res.Label
		resp.Confidence = res.Confidence
		resp.ConfidenceKind = res.ConfidenceKind.String()
		resp.Seq = res.Seq
		at := res.At
		resp.UpdatedAt = &at
		for i, score := range res.ScoreSlice() {
			resp.Scores[h.label(i)] = ClassScore{Score: score, Percent: res.Percent[i]}
		}
	}

	writeJSON(w, resp)
}

// maxPreviewWidth bounds the width query parameter of /capture.jpg.
const maxPreviewWidth = 1280

// Capture serves the latest frame as a JPEG. An optional width query
// parameter scales the preview, keeping the aspect ratio.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPreviewWidth {
			http.Error(w, fmt.Sprintf("width must be 1..%d", maxPreviewWidth), http.StatusBadRequest)
			return
		}
		width = n
	}

	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	var info classify.FrameInfo
	info, h.frame = h.src.LastFrame(h.frame)
	if len(h.frame) == 0 {
		http.Error(w, "No frame captured yet", http.StatusServiceUnavailable)
		return
	}

	var img image.Image
	switch info.Format {
	case pixel.FormatJPEG:
		if width == 0 {
			h.writeJPEG(w, info, h.frame)
			return
		}
		decoded, err := jpeg.Decode(bytes.NewReader(h.frame))
		if err != nil {
			h.log.WithError(err).Warn("capture: bad frame")
			http.Error(w, "Frame unavailable", http.StatusInternalServerError)
			return
		}
		img = decoded
	case pixel.FormatRGB565:
		rgba, err := rgb565Image(info.Width, info.Height, h.frame)
		if err != nil {
			h.log.WithError(err).Warn("capture: bad frame")
			http.Error(w, "Frame unavailable", http.StatusInternalServerError)
			return
		}
		img = rgba
	default:
		http.Error(w, fmt.Sprintf("Unsupported frame format %s", info.Format), http.StatusInternalServerError)
		return
	}

	if width > 0 {
		img = resize.Resize(uint(width), 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		h.log.WithError(err).Warn("capture: encode failed")
		http.Error(w, "Frame unavailable", http.StatusInternalServerError)
		return
	}
	h.writeJPEG(w, info, buf.Bytes())
}

func (h *Handler) writeJPEG(w http.ResponseWriter, info classify.FrameInfo, body []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", fmt.Sprint(info.Seq))
	if _, err := w.Write(body); err != nil {
		h.log.WithError(err).Debug("capture: client went away")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.src.Stats()
	_, ok := h.src.Latest()
	writeJSON(w, map[string]any{
		"status":         "healthy",
		"classifying":    ok,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"inferences":     st.Inferences,
	})
}

func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "OK")
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (h *Handler) label(i int) string {
	if i < len(h.labels) {
		return h.labels[i]
	}
	return fmt.Sprintf("class_%d", i)
}

func rgb565Image(w, h int, data []byte) (*image.RGBA, error) {
	if w <= 0 || h <= 0 || len(data) != w*h*2 {
		return nil, fmt.Errorf("rgb565 frame %dx%d with %d bytes", w, h, len(data))
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		r, g, b := pixel.DecodeRGB565(pixel.At(data, i))
		img.Pix[i*4] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>edge-classifier</title>
</head>
<body>
<img id="camera" src="/capture.jpg" alt="camera" width="320">
<pre id="status">loading...</pre>
<script>
function refresh() {
  document.getElementById('camera').src = '/capture.jpg?t=' + Date.now();
  fetch('/status').then(r => r.json()).then(d => {
    document.getElementById('status').textContent =
      d.prediction + ' (' + d.confidence.toFixed(1) + ' ' + d.confidence_kind + ')\n' +
      'inferences: ' + d.stats.total_inferences + '\n' +
      'avg: ' + d.stats.avg_time_ms.toFixed(1) + 'ms';
  });
}
setInterval(refresh, 1000);
</script>
</body>
</html>
`
