package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/vision"
	"github.com/spf13/cobra"
)

var findInDB bool

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Identify the face in a still image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0])
	},
}

func init() {
	findCmd.Flags().BoolVar(&findInDB, "db", false, "Search the faces exported to PostgreSQL instead of the gallery")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return errReported
	}

	e, err := newEngine(cfg)
	if err != nil {
		utils.ShowError("Failed to start face backend", err, nil)
		return errReported
	}
	defer e.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	query, err := largestFace(e, imagePath)
	if errors.Is(err, gallery.ErrNoFace) {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	if err != nil {
		utils.ShowError("Face processing failed", err, e.crashLogs())
		return errReported
	}

	if findInDB {
		return findExported(ctx, query)
	}

	g, err := e.loadGallery(cfg.GalleryDir)
	if err != nil {
		utils.ShowError("Failed to load known faces", err, e.crashLogs())
		return errReported
	}
	m := g.Match(query, cfg.Threshold)
	if !m.Known {
		fmt.Println("❌ No match found in gallery.")
		return nil
	}
	fmt.Printf("✅ Found Match: %s (distance %.3f, %s)\n", m.Name, m.Distance, g.Entries()[m.Index].Source)
	return nil
}

// largestFace returns the embedding of the biggest face in the image at path.
func largestFace(e *engine, path string) (vision.Embedding, error) {
	frame, err := e.source.Decode(path)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	faces, err := vision.DetectAndEmbed(e.embedder, frame)
	if err != nil {
		return nil, err
	}
	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}
	best, ok := vision.Largest(faces)
	if !ok {
		return nil, gallery.ErrNoFace
	}
	return best.Embedding, nil
}

func findExported(ctx context.Context, query vision.Embedding) error {
	db, err := store.New(ctx, cfg.DatabaseURL())
	if err != nil {
		utils.ShowError("Failed to connect to database", err, nil)
		return errReported
	}
	defer db.Close(context.Background())

	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	m, ok, err := db.FindClosest(ctx, query, cfg.Threshold)
	if err != nil {
		utils.ShowError("Database search failed", err, nil)
		return errReported
	}
	if !ok {
		fmt.Println("❌ No match found in database.")
		return nil
	}
	fmt.Printf("✅ Found Match: %s (distance %.3f, %s)\n", m.Name, m.Distance, m.Source)
	return nil
}
