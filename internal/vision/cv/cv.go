// Package cv implements the vision capabilities on top of OpenCV via gocv:
// webcam capture, image decoding and encoding, and HighGUI windows.
package cv

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/facegate/internal/vision"
	"gocv.io/x/gocv"
)

// errForeignFrame is returned when a frame from another backend is passed in.
var errForeignFrame = errors.New("frame was not produced by the cv backend")

// Frame wraps a BGR gocv.Mat.
type Frame struct {
	mat gocv.Mat
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// Mat exposes the underlying matrix. It stays owned by the frame.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

func (f *Frame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

func (f *Frame) Resize(factor float64) (vision.Frame, error) {
	dst := gocv.NewMat()
	gocv.Resize(f.mat, &dst, image.Point{}, factor, factor, gocv.InterpolationLinear)
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("resize by %.2f failed", factor)
	}
	return &Frame{mat: dst}, nil
}

// Encode compresses the frame. OpenCV reads the Mat as BGR, so the output is
// a standard RGB image for any decoder downstream.
func (f *Frame) Encode(ext string) ([]byte, error) {
	var fileExt gocv.FileExt
	switch ext {
	case ".jpg", ".jpeg":
		fileExt = gocv.JPEGFileExt
	case ".png":
		fileExt = gocv.PNGFileExt
	default:
		return nil, fmt.Errorf("unsupported image format %q", ext)
	}
	buf, err := gocv.IMEncode(fileExt, f.mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// GetBytes aliases C memory that Close frees.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (f *Frame) Close() error {
	return f.mat.Close()
}

// Source decodes images with IMRead and opens webcams by device id.
type Source struct {
	Device int
}

func (s *Source) Decode(path string) (vision.Frame, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("cannot decode image %s", path)
	}
	return &Frame{mat: mat}, nil
}

func (s *Source) OpenCamera() (vision.Camera, error) {
	vc, err := gocv.OpenVideoCapture(s.Device)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("device %d is not available", s.Device)
	}
	return &Camera{vc: vc}, nil
}

// Camera reads frames from a gocv.VideoCapture.
type Camera struct {
	vc *gocv.VideoCapture
}

func (c *Camera) Read() (vision.Frame, error) {
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errors.New("device returned no frame")
	}
	return &Frame{mat: mat}, nil
}

func (c *Camera) Close() error {
	return c.vc.Close()
}

// Display opens HighGUI windows.
type Display struct{}

func (Display) OpenWindow(title string) (vision.Window, error) {
	return &Window{win: gocv.NewWindow(title)}, nil
}

// Window is a HighGUI window.
type Window struct {
	win *gocv.Window
}

func (w *Window) Show(f vision.Frame, marks []vision.Mark) error {
	cf, ok := f.(*Frame)
	if !ok {
		return errForeignFrame
	}
	canvas := cf.mat.Clone()
	defer canvas.Close()

	for _, m := range marks {
		draw(&canvas, m)
	}
	w.win.IMShow(canvas)
	return nil
}

func (w *Window) PollKey() rune {
	k := w.win.WaitKey(1)
	if k < 0 {
		return vision.NoKey
	}
	return rune(k & 0xFF)
}

func (w *Window) Close() error {
	return w.win.Close()
}

const labelBarHeight = 35

func draw(img *gocv.Mat, m vision.Mark) {
	scale := m.Scale
	if scale == 0 {
		scale = 0.5
	}
	switch m.Kind {
	case vision.MarkBox:
		gocv.Rectangle(img, m.Region.Rect(), m.Color, 2)
	case vision.MarkLabel:
		r := m.Region
		bar := image.Rect(r.Left, r.Bottom-labelBarHeight, r.Right, r.Bottom)
		gocv.Rectangle(img, bar, m.Color, -1)
		gocv.PutText(img, m.Text, image.Pt(r.Left+6, r.Bottom-6), gocv.FontHersheySimplex, scale, vision.White, 1)
	case vision.MarkText:
		thickness := 1
		if scale >= 0.7 {
			thickness = 2
		}
		gocv.PutText(img, m.Text, m.At, gocv.FontHersheySimplex, scale, m.Color, thickness)
	}
}
