package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/facegate/internal/vision"
)

var (
	// ErrCameraUnavailable is returned when the capture device cannot be opened.
	ErrCameraUnavailable = errors.New("could not open webcam")
	// ErrFrameCapture is returned when the camera stops delivering frames.
	ErrFrameCapture = errors.New("couldn't capture frame")
	// ErrEmptyGallery is returned by Recognize when there is nothing to match against.
	ErrEmptyGallery = errors.New("no faces in database")
)

// FrameFunc inspects a captured frame and returns the overlay to draw on it.
type FrameFunc func(f vision.Frame) ([]vision.Mark, error)

// KeyFunc handles a key pressed while f was on screen. Returning done ends the loop.
type KeyFunc func(key rune, f vision.Frame) (done bool, err error)

// Live is the shared skeleton of the camera loops: acquire the camera and a
// window, then per frame render the overlay, poll one key and release the
// frame. Camera and window are released on every exit path.
type Live struct {
	Source  vision.ImageSource
	Display vision.Display
	Title   string
	OnFrame FrameFunc
	OnKey   KeyFunc
}

// Run blocks until OnKey reports done, a callback fails, the camera stops
// delivering frames or ctx is cancelled.
func (l *Live) Run(ctx context.Context) (err error) {
	cam, err := l.Source.OpenCamera()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if cerr := cam.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close camera: %w", cerr)
		}
	}()

	win, err := l.Display.OpenWindow(l.Title)
	if err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	defer win.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := l.step(cam, win)
		if err != nil || done {
			return err
		}
	}
}

func (l *Live) step(cam vision.Camera, win vision.Window) (bool, error) {
	frame, err := cam.Read()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFrameCapture, err)
	}
	defer frame.Close()

	var marks []vision.Mark
	if l.OnFrame != nil {
		if marks, err = l.OnFrame(frame); err != nil {
			return false, err
		}
	}
	if err := win.Show(frame, marks); err != nil {
		return false, fmt.Errorf("show frame: %w", err)
	}

	key := win.PollKey()
	if key == vision.NoKey || l.OnKey == nil {
		return false, nil
	}
	return l.OnKey(key, frame)
}

// isKey matches a polled key against a command letter in either case.
func isKey(key rune, letter rune) bool {
	return key == letter || key == letter-'a'+'A'
}
