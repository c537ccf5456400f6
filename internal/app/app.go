// Package app implements the interactive enrollment and recognition loops on
// top of the vision capabilities and the in-memory gallery.
package app

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/vision"
)

// SaveExt is the format enrolled frames are written in.
const SaveExt = ".jpg"

// DefaultScale is the downsampling factor applied before recognition.
const DefaultScale = 0.5

// App owns the gallery for the lifetime of the process. It is single-threaded:
// the loops mutate Gallery without locking.
type App struct {
	Gallery  *gallery.Gallery
	Source   vision.ImageSource
	Embedder vision.FaceEmbedder
	Display  vision.Display

	// Dir is the gallery directory enrolled images are written to.
	Dir string
	// Threshold is the maximum embedding distance for a match.
	Threshold float64
	// Scale is the downsampling factor for recognition, in (0, 1].
	Scale float64

	// Out receives status messages.
	Out io.Writer
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return io.Discard
	}
	return a.Out
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out(), format, args...)
}

// Enroll shows a live preview until the user saves a frame with a face ('s')
// or quits ('q'). On save the raw frame is written to <Dir>/<name>.jpg,
// replacing any existing file, and its embedding is appended to the gallery.
// saved reports whether an entry was added.
func (a *App) Enroll(ctx context.Context, name string) (saved bool, err error) {
	if err := gallery.ValidName(name); err != nil {
		return false, err
	}

	var face *vision.Region
	live := &Live{
		Source:  a.Source,
		Display: a.Display,
		Title:   "Recording Face",
		OnFrame: func(f vision.Frame) ([]vision.Mark, error) {
			regions, err := a.Embedder.Detect(f)
			if err != nil {
				return nil, fmt.Errorf("face detection failed: %w", err)
			}
			marks := []vision.Mark{{
				Kind:  vision.MarkText,
				At:    image.Pt(10, 30),
				Text:  "Press 'S' to Save, 'Q' to Quit",
				Color: vision.Green,
				Scale: 0.7,
			}}
			face = nil
			if len(regions) > 0 {
				r := regions[0]
				face = &r
				marks = append(marks,
					vision.Mark{Kind: vision.MarkBox, Region: r, Color: vision.Green},
					vision.Mark{Kind: vision.MarkText, At: image.Pt(r.Left, r.Top-10), Text: "Face Detected!", Color: vision.Green, Scale: 0.5},
				)
			}
			return marks, nil
		},
		OnKey: func(key rune, f vision.Frame) (bool, error) {
			switch {
			case isKey(key, 's'):
				if face == nil {
					a.printf("[ERROR] No face detected! Try again.\n")
					return false, nil
				}
				filename, err := a.save(name, f, *face)
				if err != nil {
					a.printf("[ERROR] Failed to process face: %v\n", err)
					return false, nil
				}
				saved = true
				a.printf("[SUCCESS] Saved %s\n", filename)
				return true, nil
			case isKey(key, 'q'):
				a.printf("[SYSTEM] Cancelled recording\n")
				return true, nil
			}
			return false, nil
		},
	}

	a.printf("\n[SYSTEM] Recording face for: %s\n", name)
	a.printf("Look directly at the camera. Press 's' to save, 'q' to quit...\n")
	if err := live.Run(ctx); err != nil {
		return false, err
	}
	return saved, nil
}

// save embeds region, then writes f to the gallery directory and appends the
// entry. Nothing touches the disk unless the embedding succeeded.
func (a *App) save(name string, f vision.Frame, region vision.Region) (string, error) {
	embs, err := a.Embedder.Embed(f, []vision.Region{region})
	if err != nil {
		return "", fmt.Errorf("embed face: %w", err)
	}
	if len(embs) == 0 {
		return "", gallery.ErrNoFace
	}

	data, err := f.Encode(SaveExt)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	filename := name + SaveExt
	path := filepath.Join(a.Dir, filename)
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return "", fmt.Errorf("create gallery dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}

	a.Gallery.Append(gallery.Entry{Name: name, Embedding: embs[0], Source: path})
	return filename, nil
}

// Recognize labels every face in the live feed until the user quits ('q').
// It returns ErrEmptyGallery without touching the camera when there is
// nothing to match against.
func (a *App) Recognize(ctx context.Context) error {
	if a.Gallery.Len() == 0 {
		return ErrEmptyGallery
	}
	scale := a.Scale
	if scale <= 0 || scale > 1 {
		scale = DefaultScale
	}

	live := &Live{
		Source:  a.Source,
		Display: a.Display,
		Title:   "Face Recognition",
		OnFrame: func(f vision.Frame) ([]vision.Mark, error) {
			return a.labelFaces(f, scale)
		},
		OnKey: func(key rune, _ vision.Frame) (bool, error) {
			return isKey(key, 'q'), nil
		},
	}

	a.printf("\n[SYSTEM] Starting recognition. Press 'Q' to quit...\n")
	return live.Run(ctx)
}

// labelFaces detects faces on a downsampled copy of f and returns a box and a
// name label per face in full-frame coordinates.
func (a *App) labelFaces(f vision.Frame, scale float64) ([]vision.Mark, error) {
	small := f
	if scale != 1 {
		var err error
		if small, err = f.Resize(scale); err != nil {
			return nil, fmt.Errorf("downsample frame: %w", err)
		}
		defer small.Close()
	}

	faces, err := vision.DetectAndEmbed(a.Embedder, small)
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}

	marks := make([]vision.Mark, 0, 2*len(faces))
	for _, face := range faces {
		m := a.Gallery.Match(face.Embedding, a.Threshold)
		c := vision.Red
		if m.Known {
			c = vision.Green
		}
		r := face.Region.Scale(1 / scale)
		marks = append(marks,
			vision.Mark{Kind: vision.MarkBox, Region: r, Color: c},
			vision.Mark{Kind: vision.MarkLabel, Region: r, Text: m.Name, Color: c, Scale: 0.7},
		)
	}
	return marks, nil
}
