// Package vision defines the narrow capabilities the live loops need from a
// camera/codec library and a face-recognition library.
package vision

import (
	"fmt"
	"image"
	"image/color"
)

// Embedding is a face descriptor produced by a FaceEmbedder.
type Embedding []float64

// Region is a face rectangle in frame coordinates.
type Region struct {
	Top, Right, Bottom, Left int
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Area returns the pixel area of the region (0 for degenerate regions).
func (r Region) Area() int {
	w, h := r.Right-r.Left, r.Bottom-r.Top
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every coordinate by factor.
func (r Region) Scale(factor float64) Region {
	return Region{
		Top:    int(float64(r.Top) * factor),
		Right:  int(float64(r.Right) * factor),
		Bottom: int(float64(r.Bottom) * factor),
		Left:   int(float64(r.Left) * factor),
	}
}

// RegionFromRect converts an image.Rectangle to a Region.
func RegionFromRect(rect image.Rectangle) Region {
	return Region{Top: rect.Min.Y, Right: rect.Max.X, Bottom: rect.Max.Y, Left: rect.Min.X}
}

// Face is a detected region together with its embedding.
type Face struct {
	Region    Region
	Embedding Embedding
}

// Frame is a decoded image owned by its creator until Close.
type Frame interface {
	Size() (width, height int)
	// Resize returns a new frame scaled by factor on both axes.
	Resize(factor float64) (Frame, error)
	// Encode serializes the frame in the format named by ext (".jpg", ".png").
	Encode(ext string) ([]byte, error)
	Close() error
}

// Camera yields frames from a capture device.
type Camera interface {
	// Read blocks until the next frame is available.
	Read() (Frame, error)
	Close() error
}

// ImageSource decodes images from disk and opens the capture device.
type ImageSource interface {
	Decode(path string) (Frame, error)
	OpenCamera() (Camera, error)
}

// FaceEmbedder locates faces and computes their embeddings.
type FaceEmbedder interface {
	Detect(f Frame) ([]Region, error)
	// Embed returns one embedding per region, in order.
	Embed(f Frame, regions []Region) ([]Embedding, error)
}

// FaceRecognizer is implemented by embedders that detect and embed in a
// single pass.
type FaceRecognizer interface {
	Recognize(f Frame) ([]Face, error)
}

// MarkKind selects how a Mark is drawn.
type MarkKind int

const (
	// MarkBox outlines Region.
	MarkBox MarkKind = iota
	// MarkLabel draws a filled bar along the bottom of Region with Text on it.
	MarkLabel
	// MarkText draws Text with its baseline starting at At.
	MarkText
)

// Mark is one overlay element drawn on top of a displayed frame.
type Mark struct {
	Kind   MarkKind
	Region Region
	At     image.Point
	Text   string
	Color  color.RGBA
	// Scale is the font scale for text; zero means the backend default.
	Scale float64
}

// Window is an on-screen surface showing frames.
type Window interface {
	// Show draws marks on a copy of f and displays it; f itself is not modified.
	Show(f Frame, marks []Mark) error
	// PollKey waits briefly for a key press and returns it, or -1 if none.
	PollKey() rune
	Close() error
}

// Display opens windows.
type Display interface {
	OpenWindow(title string) (Window, error)
}

// NoKey is returned by Window.PollKey when no key was pressed.
const NoKey rune = -1

// Overlay colors, in RGB.
var (
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DetectAndEmbed returns every face in f with its embedding, using the
// single-pass path when the embedder offers one.
func DetectAndEmbed(e FaceEmbedder, f Frame) ([]Face, error) {
	if r, ok := e.(FaceRecognizer); ok {
		return r.Recognize(f)
	}
	regions, err := e.Detect(f)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, nil
	}
	embs, err := e.Embed(f, regions)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(regions) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d regions", len(embs), len(regions))
	}
	faces := make([]Face, len(regions))
	for i := range regions {
		faces[i] = Face{Region: regions[i], Embedding: embs[i]}
	}
	return faces, nil
}

// Largest returns the face with the biggest region. ok is false for an empty slice.
func Largest(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Region.Area() > best.Region.Area() {
			best = f
		}
	}
	return best, true
}
