package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/app"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive record/recognize menu (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMenu(cmd.Context())
	},
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Record a new face from the webcam",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), strings.TrimSpace(args[0]))
	},
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Label faces in the webcam feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRecognize(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(recognizeCmd)
}

// withApp starts the face backend, loads the gallery and hands the app to fn.
func withApp(fn func(a *app.App, e *engine) error) error {
	e, err := newEngine(cfg)
	if err != nil {
		utils.ShowError("Failed to start face backend", err, nil)
		return errReported
	}
	defer e.Close()

	a, err := newApp(cfg, e)
	if err != nil {
		utils.ShowError("Failed to load known faces", err, e.crashLogs())
		return errReported
	}
	return fn(a, e)
}

func runMenu(ctx context.Context) error {
	return withApp(func(a *app.App, e *engine) error {
		err := a.Menu(ctx, os.Stdin)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func runEnroll(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	return withApp(func(a *app.App, e *engine) error {
		if _, err := a.Enroll(ctx, name); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.Report(err)
			return errReported
		}
		return nil
	})
}

func runRecognize(ctx context.Context) error {
	return withApp(func(a *app.App, e *engine) error {
		if err := a.Recognize(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.Report(err)
			return errReported
		}
		return nil
	})
}
