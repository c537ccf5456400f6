// Package visiontest provides in-memory fakes of the vision capabilities for
// tests of the gallery and the live loops.
package visiontest

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/andresmejia3/facegate/internal/vision"
)

// ErrNoMoreFrames is returned by Camera.Read once the scripted frames run out.
var ErrNoMoreFrames = errors.New("no more frames")

// Frame is a fake image carrying the faces an Embedder should "see" in it.
type Frame struct {
	ID     string
	W, H   int
	Faces  []vision.Face
	Closed bool
	// EncodeErr, if set, is returned by Encode.
	EncodeErr error
	// Parent is the frame this one was resized from.
	Parent *Frame
}

// NewFrame returns a 640x480 frame containing faces.
func NewFrame(id string, faces ...vision.Face) *Frame {
	return &Frame{ID: id, W: 640, H: 480, Faces: faces}
}

func (f *Frame) Size() (int, int) { return f.W, f.H }

func (f *Frame) Resize(factor float64) (vision.Frame, error) {
	faces := make([]vision.Face, len(f.Faces))
	for i, face := range f.Faces {
		faces[i] = vision.Face{Region: face.Region.Scale(factor), Embedding: face.Embedding}
	}
	return &Frame{
		ID:     f.ID,
		W:      int(float64(f.W) * factor),
		H:      int(float64(f.H) * factor),
		Faces:  faces,
		Parent: f,
	}, nil
}

// Encode returns "<id><ext>" so tests can tell which frame was written.
func (f *Frame) Encode(ext string) ([]byte, error) {
	if f.EncodeErr != nil {
		return nil, f.EncodeErr
	}
	return []byte(f.ID + ext), nil
}

func (f *Frame) Close() error {
	f.Closed = true
	return nil
}

// Source decodes files by base name and serves scripted camera frames.
type Source struct {
	Files   map[string]*Frame
	Frames  []*Frame
	OpenErr error

	Cameras []*Camera
}

func (s *Source) Decode(path string) (vision.Frame, error) {
	f, ok := s.Files[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("cannot decode %s", filepath.Base(path))
	}
	return f, nil
}

func (s *Source) OpenCamera() (vision.Camera, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	c := &Camera{frames: s.Frames}
	s.Cameras = append(s.Cameras, c)
	return c, nil
}

// Camera replays frames in order.
type Camera struct {
	frames []*Frame
	next   int
	Closed bool
}

func (c *Camera) Read() (vision.Frame, error) {
	if c.next >= len(c.frames) {
		return nil, ErrNoMoreFrames
	}
	f := c.frames[c.next]
	c.next++
	return f, nil
}

func (c *Camera) Close() error {
	c.Closed = true
	return nil
}

// Embedder reports the faces stored on each fake Frame.
type Embedder struct {
	DetectErr error
	EmbedErr  error

	DetectCalls int
	EmbedCalls  int
}

func (e *Embedder) Detect(f vision.Frame) ([]vision.Region, error) {
	e.DetectCalls++
	if e.DetectErr != nil {
		return nil, e.DetectErr
	}
	ff := f.(*Frame)
	regions := make([]vision.Region, len(ff.Faces))
	for i, face := range ff.Faces {
		regions[i] = face.Region
	}
	return regions, nil
}

func (e *Embedder) Embed(f vision.Frame, regions []vision.Region) ([]vision.Embedding, error) {
	e.EmbedCalls++
	if e.EmbedErr != nil {
		return nil, e.EmbedErr
	}
	ff := f.(*Frame)
	out := make([]vision.Embedding, 0, len(regions))
	for _, r := range regions {
		found := false
		for _, face := range ff.Faces {
			if face.Region == r {
				out = append(out, face.Embedding)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no face at %+v", r)
		}
	}
	return out, nil
}

// Display hands out Windows that replay Keys, one per shown frame.
type Display struct {
	Keys    []rune
	OpenErr error

	Windows []*Window
	next    int
}

func (d *Display) OpenWindow(title string) (vision.Window, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	w := &Window{Title: title, display: d}
	d.Windows = append(d.Windows, w)
	return w, nil
}

// Window records every Show call.
type Window struct {
	Title  string
	Shown  [][]vision.Mark
	Closed bool

	display *Display
}

func (w *Window) Show(f vision.Frame, marks []vision.Mark) error {
	w.Shown = append(w.Shown, marks)
	return nil
}

func (w *Window) PollKey() rune {
	d := w.display
	if d.next >= len(d.Keys) {
		return vision.NoKey
	}
	k := d.Keys[d.next]
	d.next++
	return k
}

func (w *Window) Close() error {
	w.Closed = true
	return nil
}

// Vec returns a 128-d embedding with every component set to v.
func Vec(v float64) vision.Embedding {
	e := make(vision.Embedding, 128)
	for i := range e {
		e[i] = v
	}
	return e
}
