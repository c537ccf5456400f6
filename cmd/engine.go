package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/app"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/vision"
	"github.com/andresmejia3/facegate/internal/vision/cv"
	"github.com/andresmejia3/facegate/internal/vision/dlib"
	"github.com/andresmejia3/facegate/internal/worker"
	"github.com/schollz/progressbar/v3"
)

// engine bundles the capture backend and the face backend selected by config.
type engine struct {
	source   *cv.Source
	embedder vision.FaceEmbedder
	// py is set when the python backend runs, so crash logs can be shown.
	py    *worker.PythonWorker
	close func()
}

func newEngine(c *config.Config) (*engine, error) {
	e := &engine{source: &cv.Source{Device: c.Camera}}

	switch c.Backend {
	case config.BackendPython:
		fmt.Fprintln(os.Stderr, "🚀 Starting face_recognition worker...")
		// We use ID 0 for the single worker
		w, err := worker.NewPythonWorker(0, worker.Config{Python: c.Python, Script: c.WorkerScript})
		if err != nil {
			return nil, err
		}
		e.embedder, e.py, e.close = w, w, w.Close
	default:
		rec, err := dlib.New(c.ModelsDir)
		if err != nil {
			return nil, err
		}
		rec.UseCNN = c.CNN
		e.embedder, e.close = rec, rec.Close
	}
	return e, nil
}

func (e *engine) Close() {
	if e.close != nil {
		e.close()
	}
}

// crashLogs returns the worker's stderr capture, or nil.
func (e *engine) crashLogs() *utils.SafeCommand {
	if e.py == nil {
		return nil
	}
	return e.py.Cmd
}

// loadGallery embeds every image in dir, drawing a progress bar on stderr.
func (e *engine) loadGallery(dir string) (*gallery.Gallery, error) {
	total := -1 // spinner until the directory exists
	if files, err := gallery.ImageFiles(dir); err == nil {
		total = len(files)
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("📂 Loading faces"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	loader := &gallery.Loader{
		Decoder:  e.source,
		Embedder: e.embedder,
		Log:      os.Stdout,
		OnFile:   func(string) { bar.Add(1) },
	}
	g, err := loader.Load(dir)
	bar.Finish()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// newApp loads the gallery and assembles the interactive application.
func newApp(c *config.Config, e *engine) (*app.App, error) {
	g, err := e.loadGallery(c.GalleryDir)
	if err != nil {
		return nil, err
	}
	return &app.App{
		Gallery:   g,
		Source:    e.source,
		Embedder:  e.embedder,
		Display:   cv.Display{},
		Dir:       c.GalleryDir,
		Threshold: c.Threshold,
		Scale:     c.Scale,
		Out:       os.Stdout,
	}, nil
}
