// Package monitor renders debugging views of the pipeline: the most recent
// conditioned window as a PNG and archived sessions as label timelines.
package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/dsp"
	"github.com/banshee-data/emgfes/internal/emg"
)

// ErrNoWindow is returned before the first window has been classified.
var ErrNoWindow = errors.New("no window classified yet")

// WindowPlotter keeps the last classified window for plotting. Observe has
// the shape of acquisition.WindowObserver and only copies a reference, so
// it is cheap on the worker goroutine; rendering happens on request.
type WindowPlotter struct {
	sampleRateHz float64

	mu     sync.Mutex
	window dsp.Conditioned
	result classifier.Result
	at     time.Time
}

func NewWindowPlotter(sampleRateHz float64) *WindowPlotter {
	return &WindowPlotter{sampleRateHz: sampleRateHz}
}

// Observe records a classified window. Conditioned windows are freshly
// allocated per call and never written afterwards, so no copy is taken.
func (wp *WindowPlotter) Observe(_ emg.Window, c dsp.Conditioned, res classifier.Result) {
	wp.mu.Lock()
	wp.window, wp.result, wp.at = c, res, time.Now()
	wp.mu.Unlock()
}

// RenderPNG draws every channel of the last window against time in
// milliseconds.
func (wp *WindowPlotter) RenderPNG(w io.Writer, width, height vg.Length) error {
	wp.mu.Lock()
	window, res, at := wp.window, wp.result, wp.at
	wp.mu.Unlock()
	if window == nil {
		return ErrNoWindow
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s)", res.Label.Name, at.Format("15:04:05.000"))
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Conditioned amplitude"
	p.Add(plotter.NewGrid())

	channels := len(window[0])
	for ch := 0; ch < channels; ch++ {
		pts := make(plotter.XYs, len(window))
		for i, row := range window {
			pts[i].X = float64(i) * 1000 / wp.sampleRateHz
			pts[i].Y = float64(row[ch])
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		line.Color = plotutil.Color(ch)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("A%d", ch), line)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func (wp *WindowPlotter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := wp.RenderPNG(&buf, 10*vg.Inch, 5*vg.Inch)
	if errors.Is(err, ErrNoWindow) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render window: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// AttachAdminRoutes serves the plot at /debug/window.png.
func (wp *WindowPlotter) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).Handle("window.png", "Last classified EMG window", wp)
}
