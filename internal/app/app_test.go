package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/vision"
	"github.com/andresmejia3/facegate/internal/vision/visiontest"
)

var aliceRegion = vision.Region{Top: 40, Right: 200, Bottom: 220, Left: 60}

type fixture struct {
	app     *App
	source  *visiontest.Source
	display *visiontest.Display
	emb     *visiontest.Embedder
	out     *bytes.Buffer
}

func newFixture(t *testing.T, frames []*visiontest.Frame, keys ...rune) *fixture {
	t.Helper()
	f := &fixture{
		source:  &visiontest.Source{Frames: frames},
		display: &visiontest.Display{Keys: keys},
		emb:     &visiontest.Embedder{},
		out:     &bytes.Buffer{},
	}
	f.app = &App{
		Gallery:   gallery.New(),
		Source:    f.source,
		Embedder:  f.emb,
		Display:   f.display,
		Dir:       t.TempDir(),
		Threshold: gallery.DefaultThreshold,
		Scale:     0.5,
		Out:       f.out,
	}
	return f
}

// assertReleased checks that every camera and window opened was closed.
func (f *fixture) assertReleased(t *testing.T) {
	t.Helper()
	for i, c := range f.source.Cameras {
		if !c.Closed {
			t.Errorf("camera %d was not closed", i)
		}
	}
	for i, w := range f.display.Windows {
		if !w.Closed {
			t.Errorf("window %d (%s) was not closed", i, w.Title)
		}
	}
}

func dirFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEnroll_NoFaceDoesNotSave(t *testing.T) {
	empty := visiontest.NewFrame("empty")
	fx := newFixture(t, []*visiontest.Frame{empty, empty}, 's', 'q')

	saved, err := fx.app.Enroll(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if saved {
		t.Error("expected nothing saved")
	}
	if fx.app.Gallery.Len() != 0 {
		t.Errorf("gallery grew to %d", fx.app.Gallery.Len())
	}
	if files := dirFiles(t, fx.app.Dir); len(files) != 0 {
		t.Errorf("expected no files written, got %v", files)
	}
	if !strings.Contains(fx.out.String(), "No face detected! Try again.") {
		t.Errorf("expected no-face message, got %q", fx.out.String())
	}
	fx.assertReleased(t)
}

func TestEnroll_SavesOneEntryAndFile(t *testing.T) {
	empty := visiontest.NewFrame("empty")
	face := visiontest.NewFrame("alice-frame", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.25)})
	// An idle frame, then a face frame on which 's' is pressed.
	fx := newFixture(t, []*visiontest.Frame{empty, face}, vision.NoKey, 's')

	saved, err := fx.app.Enroll(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if !saved {
		t.Fatal("expected entry to be saved")
	}
	if fx.app.Gallery.Len() != 1 {
		t.Fatalf("expected gallery size 1, got %d", fx.app.Gallery.Len())
	}
	e := fx.app.Gallery.Entries()[0]
	if e.Name != "alice" || e.Embedding[0] != 0.25 {
		t.Errorf("unexpected entry %+v", e)
	}

	files := dirFiles(t, fx.app.Dir)
	if len(files) != 1 || files[0] != "alice.jpg" {
		t.Fatalf("expected exactly alice.jpg, got %v", files)
	}
	data, _ := os.ReadFile(filepath.Join(fx.app.Dir, "alice.jpg"))
	if string(data) != "alice-frame.jpg" {
		t.Errorf("expected the frame on screen to be written, got %q", data)
	}
	if !strings.Contains(fx.out.String(), "[SUCCESS] Saved alice.jpg") {
		t.Errorf("expected success message, got %q", fx.out.String())
	}
	fx.assertReleased(t)
}

func TestEnroll_OverwritesExistingFile(t *testing.T) {
	face := visiontest.NewFrame("new-shot", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})
	fx := newFixture(t, []*visiontest.Frame{face}, 'S')
	path := filepath.Join(fx.app.Dir, "alice.jpg")
	if err := os.WriteFile(path, []byte("old-shot"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.app.Enroll(context.Background(), "alice"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new-shot.jpg" {
		t.Errorf("expected file to be overwritten, got %q", data)
	}
	if files := dirFiles(t, fx.app.Dir); len(files) != 1 {
		t.Errorf("expected one file, got %v", files)
	}
}

func TestEnroll_QuitLeavesStateUntouched(t *testing.T) {
	face := visiontest.NewFrame("f", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})
	fx := newFixture(t, []*visiontest.Frame{face}, 'q')

	saved, err := fx.app.Enroll(context.Background(), "alice")
	if err != nil || saved {
		t.Fatalf("expected clean cancel, got saved=%v err=%v", saved, err)
	}
	if fx.app.Gallery.Len() != 0 || len(dirFiles(t, fx.app.Dir)) != 0 {
		t.Error("quit must not modify state")
	}
	fx.assertReleased(t)
}

func TestEnroll_EmbedFailureKeepsWaiting(t *testing.T) {
	face := visiontest.NewFrame("f", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})
	fx := newFixture(t, []*visiontest.Frame{face, face}, 's', 'q')
	fx.emb.EmbedErr = errors.New("dlib exploded")

	saved, err := fx.app.Enroll(context.Background(), "alice")
	if err != nil || saved {
		t.Fatalf("expected loop to continue then quit, got saved=%v err=%v", saved, err)
	}
	if fx.app.Gallery.Len() != 0 {
		t.Error("gallery must not grow when embedding fails")
	}
	if files := dirFiles(t, fx.app.Dir); len(files) != 0 {
		t.Errorf("no image may be written when embedding fails, got %v", files)
	}
	if !strings.Contains(fx.out.String(), "Failed to process face") {
		t.Errorf("expected failure message, got %q", fx.out.String())
	}
}

func TestEnroll_Overlay(t *testing.T) {
	face := visiontest.NewFrame("f", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})
	fx := newFixture(t, []*visiontest.Frame{face}, 'q')

	if _, err := fx.app.Enroll(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	shown := fx.display.Windows[0].Shown
	if len(shown) != 1 {
		t.Fatalf("expected 1 frame shown, got %d", len(shown))
	}
	marks := shown[0]
	if len(marks) != 3 {
		t.Fatalf("expected guidance, box and caption, got %+v", marks)
	}
	if marks[1].Kind != vision.MarkBox || marks[1].Region != aliceRegion {
		t.Errorf("expected box around the face, got %+v", marks[1])
	}
	if fx.display.Windows[0].Title != "Recording Face" {
		t.Errorf("unexpected window title %q", fx.display.Windows[0].Title)
	}
}

func TestEnroll_CameraUnavailable(t *testing.T) {
	fx := newFixture(t, nil)
	fx.source.OpenErr = errors.New("no device")

	_, err := fx.app.Enroll(context.Background(), "alice")
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	if len(fx.display.Windows) != 0 {
		t.Error("window must not be opened without a camera")
	}
}

func TestEnroll_FrameCaptureFailure(t *testing.T) {
	fx := newFixture(t, []*visiontest.Frame{visiontest.NewFrame("only")})

	_, err := fx.app.Enroll(context.Background(), "alice")
	if !errors.Is(err, ErrFrameCapture) {
		t.Fatalf("expected ErrFrameCapture, got %v", err)
	}
	fx.assertReleased(t)
}

func TestEnroll_EmptyName(t *testing.T) {
	fx := newFixture(t, nil)
	if _, err := fx.app.Enroll(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if len(fx.source.Cameras) != 0 {
		t.Error("camera must not be opened for an empty name")
	}
}

func TestEnroll_EmbedFailureKeepsPreviousImage(t *testing.T) {
	face := visiontest.NewFrame("new", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})
	fx := newFixture(t, []*visiontest.Frame{face, face}, 's', 'q')
	fx.emb.EmbedErr = errors.New("dlib exploded")

	old := filepath.Join(fx.app.Dir, "alice.jpg")
	if err := os.WriteFile(old, []byte("old-frame"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.app.Enroll(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(old)
	if err != nil || string(data) != "old-frame" {
		t.Errorf("earlier enrollment was overwritten: %q, %v", data, err)
	}
}

func TestEnroll_RejectsPathNames(t *testing.T) {
	parent := t.TempDir()
	face := visiontest.NewFrame("f", vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.1)})

	for _, name := range []string{"../escaped", "sub/alice", `..\escaped`, "..", "."} {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, []*visiontest.Frame{face}, 's')
			fx.app.Dir = filepath.Join(parent, "g")

			saved, err := fx.app.Enroll(context.Background(), name)
			if err == nil || saved {
				t.Fatalf("expected %q to be rejected, got saved=%v err=%v", name, saved, err)
			}
			if len(fx.source.Cameras) != 0 {
				t.Error("camera must not be opened for an invalid name")
			}
		})
	}
	if _, err := os.Stat(filepath.Join(parent, "escaped.jpg")); !os.IsNotExist(err) {
		t.Errorf("file written outside the gallery: %v", err)
	}
}

func TestRecognize_EmptyGallerySkipsCamera(t *testing.T) {
	fx := newFixture(t, []*visiontest.Frame{visiontest.NewFrame("f")}, 'q')

	err := fx.app.Recognize(context.Background())
	if !errors.Is(err, ErrEmptyGallery) {
		t.Fatalf("expected ErrEmptyGallery, got %v", err)
	}
	if len(fx.source.Cameras) != 0 {
		t.Error("camera must not be opened for an empty gallery")
	}
}

func TestRecognize_LabelsAndRescales(t *testing.T) {
	strangerRegion := vision.Region{Top: 100, Right: 500, Bottom: 300, Left: 300}
	frame := visiontest.NewFrame("crowd",
		vision.Face{Region: aliceRegion, Embedding: visiontest.Vec(0.25)},
		vision.Face{Region: strangerRegion, Embedding: visiontest.Vec(3)},
	)
	fx := newFixture(t, []*visiontest.Frame{frame}, 'q')
	fx.app.Gallery.Append(gallery.Entry{Name: "alice", Embedding: visiontest.Vec(0.25)})

	if err := fx.app.Recognize(context.Background()); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	win := fx.display.Windows[0]
	if win.Title != "Face Recognition" {
		t.Errorf("unexpected window title %q", win.Title)
	}
	marks := win.Shown[0]
	if len(marks) != 4 {
		t.Fatalf("expected box+label per face, got %+v", marks)
	}

	// The fake embedder saw the half-size frame; marks must be back in full-frame coordinates.
	if marks[0].Region != aliceRegion {
		t.Errorf("expected alice box %+v, got %+v", aliceRegion, marks[0].Region)
	}
	if marks[1].Text != "alice" || marks[1].Color != vision.Green {
		t.Errorf("expected green alice label, got %+v", marks[1])
	}
	if marks[2].Region != strangerRegion {
		t.Errorf("expected stranger box %+v, got %+v", strangerRegion, marks[2].Region)
	}
	if marks[3].Text != gallery.Unknown || marks[3].Color != vision.Red {
		t.Errorf("expected red Unknown label, got %+v", marks[3])
	}
	if marks[1].Color == marks[3].Color {
		t.Error("known and unknown labels must differ in color")
	}
	fx.assertReleased(t)
}

func TestRecognize_RunsUntilQuit(t *testing.T) {
	f := visiontest.NewFrame("f")
	fx := newFixture(t, []*visiontest.Frame{f, f, f, f}, vision.NoKey, 'x', vision.NoKey, 'Q')
	fx.app.Gallery.Append(gallery.Entry{Name: "alice", Embedding: visiontest.Vec(0)})

	if err := fx.app.Recognize(context.Background()); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if n := len(fx.display.Windows[0].Shown); n != 4 {
		t.Errorf("expected 4 frames shown before quit, got %d", n)
	}
	if !f.Closed {
		t.Error("frames must be released after each iteration")
	}
}

func TestLive_ContextCancelled(t *testing.T) {
	fx := newFixture(t, []*visiontest.Frame{visiontest.NewFrame("f")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	live := &Live{Source: fx.source, Display: fx.display, Title: "t"}
	if err := live.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	fx.assertReleased(t)
}

func TestLive_FrameCallbackError(t *testing.T) {
	fx := newFixture(t, []*visiontest.Frame{visiontest.NewFrame("f")})
	boom := errors.New("boom")
	live := &Live{
		Source:  fx.source,
		Display: fx.display,
		OnFrame: func(vision.Frame) ([]vision.Mark, error) { return nil, boom },
	}
	if err := live.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	fx.assertReleased(t)
}
