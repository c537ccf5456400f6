package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// Menu runs the interactive text menu reading choices from in until the user
// picks Exit or in is exhausted. Failures of the chosen operation are reported
// and the menu is shown again; only a cancelled ctx ends it with an error.
func (a *App) Menu(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.printf("\n=== Face Recognition System ===\n")
		a.printf("1. Record new face\n")
		a.printf("2. Recognize faces\n")
		a.printf("3. Exit\n")

		choice, ok := prompt(r, a, "Enter your choice (1-3): ")
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			name, ok := prompt(r, a, "Enter person's name: ")
			if !ok {
				return nil
			}
			if name == "" {
				a.printf("[ERROR] Name cannot be empty!\n")
				continue
			}
			if _, err := a.Enroll(ctx, name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.Report(err)
			}
		case "2":
			if err := a.Recognize(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.Report(err)
			}
		case "3":
			a.printf("[SYSTEM] Exiting...\n")
			return nil
		default:
			a.printf("[ERROR] Invalid choice!\n")
		}
	}
}

// prompt prints label and reads one trimmed line. ok is false at end of input
// with nothing left to read.
func prompt(r *bufio.Reader, a *App, label string) (string, bool) {
	a.printf("%s", label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// Report prints an operation failure the way the menu shows it.
func (a *App) Report(err error) {
	switch {
	case errors.Is(err, ErrCameraUnavailable):
		a.printf("[ERROR] Could not open webcam!\n")
	case errors.Is(err, ErrFrameCapture):
		a.printf("[ERROR] Couldn't capture frame\n")
	case errors.Is(err, ErrEmptyGallery):
		a.printf("\n[ERROR] No faces in database! Record faces first.\n")
	default:
		a.printf("[ERROR] %v\n", err)
	}
}
