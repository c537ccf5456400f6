package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// cfg is loaded once in PersistentPreRunE and shared by subcommands
	cfg *config.Config
	// v holds defaults, environment and bound flags
	v = config.New()
	// cfgFile is an explicit config file path
	cfgFile string
)

// errReported marks failures that were already shown to the user.
var errReported = errors.New("reported")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facegate",
	Short:   "Webcam face enrollment and recognition",
	Long:    "Records named faces from a webcam into a directory of images and recognizes them live.\nRun without a subcommand to open the interactive menu.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		// OpenCV HighGUI defaults to Wayland on some desktops, where its windows misbehave.
		if os.Getenv("QT_QPA_PLATFORM") == "" {
			os.Setenv("QT_QPA_PLATFORM", "xcb")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMenu(cmd.Context())
	},
	SilenceErrors: true, // Execute prints errors itself
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./facegate.yaml or ~/.config/facegate/facegate.yaml)")
	flags.String("gallery", "known_faces", "Directory of enrolled face images")
	flags.String("models", "models", "Directory containing the dlib model files")
	flags.Int("camera", 0, "Webcam device index")
	flags.Float64P("threshold", "t", 0.6, "Maximum embedding distance for a match")
	flags.Float64("scale", 0.5, "Frame downscale factor for recognition")
	flags.String("backend", config.BackendDlib, "Face backend: dlib or python")
	flags.Bool("cnn", false, "Use the CNN face detector (dlib backend)")
	flags.String("worker-script", "python/worker.py", "Path to the face_recognition worker (python backend)")
	flags.String("python", "python3", "Python interpreter for the worker")
	flags.String("db-url", "", "PostgreSQL connection string (default: POSTGRES_* env or "+config.DefaultDB+")")

	for key, flag := range map[string]string{
		"gallery_dir":   "gallery",
		"models_dir":    "models",
		"camera":        "camera",
		"threshold":     "threshold",
		"scale":         "scale",
		"backend":       "backend",
		"cnn":           "cnn",
		"worker_script": "worker-script",
		"python":        "python",
		"db":            "db-url",
	} {
		// Flags only override when set; unset flags fall through to env and file.
		v.BindPFlag(key, flags.Lookup(flag))
	}
}
