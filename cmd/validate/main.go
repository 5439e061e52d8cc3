// Command validate runs a labeled frame directory through the classifier and
// reports accuracy and latency. Frames live at <dir>/<LABEL>/<name>.rgb565 or
// <dir>/<LABEL>/<name>.jpg.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/arena"
	"github.com/Brownie44l1/edge-classifier/internal/capture"
	"github.com/Brownie44l1/edge-classifier/internal/classify"
	"github.com/Brownie44l1/edge-classifier/internal/engine"
	"github.com/Brownie44l1/edge-classifier/internal/labels"
	"github.com/Brownie44l1/edge-classifier/internal/model"
	"github.com/Brownie44l1/edge-classifier/internal/monitoring"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
	"github.com/Brownie44l1/edge-classifier/internal/validation"
)

func main() {
	dir := flag.String("dir", "", "Directory with one subdirectory per label")
	modelPath := flag.String("model", "", "Model blob (default: built-in reference model)")
	width := flag.Int("width", 160, "Width of raw rgb565 frames")
	height := flag.Int("height", 120, "Height of raw rgb565 frames")
	jsonOut := flag.String("json", "", "Write metrics as JSON to this path")
	channels := flag.String("channels", "gray", "Built-in model input channel order: gray or rgb")
	flag.Parse()

	log := monitoring.Logger()
	if *dir == "" {
		log.Fatal("-dir is required")
	}

	ch, err := tensor.ParseChannelOrder(*channels)
	if err != nil {
		log.WithError(err).Fatal("bad -channels")
	}
	blob := model.ReferenceBlobFor(ch)
	if *modelPath != "" {
		if blob, err = os.ReadFile(*modelPath); err != nil {
			log.WithError(err).Fatal("failed to read model")
		}
	}
	eng, err := engine.Setup(blob, arena.DefaultCapacity)
	if err != nil {
		log.WithError(err).Fatal("failed to set up engine")
	}

	byFormat, err := collect(*dir, labels.Names())
	if err != nil {
		log.WithError(err).Fatal("failed to list frames")
	}

	rec := validation.NewRecorder(labels.Names())
	for _, format := range []pixel.Format{pixel.FormatRGB565, pixel.FormatJPEG} {
		paths := byFormat[format]
		if len(paths) == 0 {
			continue
		}
		if err := run(context.Background(), eng, format, paths, *width, *height, rec, log); err != nil {
			log.WithError(err).Fatal("validation failed")
		}
	}

	m, err := rec.Metrics()
	if err != nil {
		log.WithError(err).Fatal("no frames classified")
	}
	if err := m.WriteTable(os.Stdout); err != nil {
		log.WithError(err).Fatal("failed to print metrics")
	}
	if *jsonOut != "" {
		f, err := os.Create(*jsonOut)
		if err != nil {
			log.WithError(err).Fatal("failed to create json output")
		}
		defer f.Close()
		if err := m.WriteJSON(f); err != nil {
			log.WithError(err).Fatal("failed to write json output")
		}
	}
}

// collect lists frame files under dir/<label>, grouped by capture format.
func collect(dir string, names []string) (map[pixel.Format][]string, error) {
	out := map[pixel.Format][]string{}
	for _, label := range names {
		entries, err := os.ReadDir(filepath.Join(dir, label))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !capture.IsFrameFile(e.Name()) {
				continue
			}
			f := pixel.FormatJPEG
			if strings.EqualFold(filepath.Ext(e.Name()), ".rgb565") {
				f = pixel.FormatRGB565
			}
			out[f] = append(out[f], filepath.Join(dir, label, e.Name()))
		}
	}
	for _, paths := range out {
		slices.Sort(paths)
	}
	return out, nil
}

func run(ctx context.Context, eng *engine.Engine, format pixel.Format, paths []string, w, h int, rec *validation.Recorder, log *logrus.Logger) error {
	dev := capture.NewFileList(paths, w, h)
	defer dev.Close()

	core, err := classify.New(classify.Options{
		Device:         dev,
		Inferer:        eng,
		Labels:         labels.Names(),
		ExpectedFormat: format,
		Logger:         log.WithField("format", format),
	})
	if err != nil {
		return err
	}

	for range paths {
		_, err := core.RunCycle(ctx)
		path := dev.LastPath()
		if err != nil {
			if !classify.IsRecoverable(err) {
				return err
			}
			log.WithError(err).WithField("path", path).Warn("frame skipped")
			continue
		}
		res, _ := core.Latest()
		if err := rec.Add(validation.Sample{
			ID:        path,
			Expected:  filepath.Base(filepath.Dir(path)),
			Predicted: res.Label,
			Latency:   res.Latency,
			Scores:    res.ScoreSlice(),
		}); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%s: %d frames\n", format, len(paths))
	return nil
}
