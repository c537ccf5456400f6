package gallery

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/vision"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("no face found")

// Decoder turns an image file into a frame.
type Decoder interface {
	Decode(path string) (vision.Frame, error)
}

// Loader builds a Gallery from a directory of face images.
type Loader struct {
	Decoder  Decoder
	Embedder vision.FaceEmbedder
	// Log receives one line per loaded or skipped file. Nil discards.
	Log io.Writer
	// OnFile, if set, is called after each image file is processed.
	OnFile func(name string)
}

// Load reads every .jpg/.jpeg/.png file in dir, in name order, and appends
// the first face embedding of each to a new gallery named by the file stem.
// Files that cannot be decoded or contain no face are reported and skipped.
// dir is created if it does not exist.
func (l *Loader) Load(dir string) (*Gallery, error) {
	log := l.Log
	if log == nil {
		log = io.Discard
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}
	files, err := ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(log, "\n[SYSTEM] Loading known faces...\n")
	g := New()
	for _, name := range files {
		path := filepath.Join(dir, name)
		emb, err := l.EmbedFile(path)
		switch {
		case errors.Is(err, ErrNoFace):
			fmt.Fprintf(log, "No faces found in %s\n", name)
		case err != nil:
			fmt.Fprintf(log, "Error loading %s: %v\n", name, err)
		default:
			label := utils.NameFromFile(name)
			g.Append(Entry{Name: label, Embedding: emb, Source: path})
			fmt.Fprintf(log, "Loaded: %s\n", label)
		}
		if l.OnFile != nil {
			l.OnFile(name)
		}
	}
	fmt.Fprintf(log, "[SYSTEM] Loaded %d known faces\n", g.Len())
	return g, nil
}

// EmbedFile decodes path and returns the embedding of the first face in it.
func (l *Loader) EmbedFile(path string) (vision.Embedding, error) {
	frame, err := l.Decoder.Decode(path)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	faces, err := vision.DetectAndEmbed(l.Embedder, frame)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}
	return faces[0].Embedding, nil
}

// ImageFiles lists the names of the gallery images in dir, sorted by name.
func ImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !utils.IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
