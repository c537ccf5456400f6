package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB  bool
	resetYes bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every enrolled face image",
	Long:  "Removes all images from the gallery directory. With --db the exported known_faces table is dropped too.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReset(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Also drop the exported PostgreSQL table")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	cleared := false

	if resetYes || confirm(reader, out, fmt.Sprintf("⚠️  Are you sure you want to delete all faces in %s?", cfg.GalleryDir)) {
		fmt.Fprintln(out, "🗑️  Clearing Gallery...")
		n, err := gallery.Clear(cfg.GalleryDir)
		if err != nil {
			utils.ShowError("Failed to clear gallery", err, nil)
			return errReported
		}
		fmt.Fprintf(out, "Removed %d image(s)\n", n)
		cleared = true
	}

	if resetDB && (resetYes || confirm(reader, out, "⚠️  Are you sure you want to DROP the known_faces table?")) {
		fmt.Fprintln(out, "🗑️  Clearing Database...")
		db, err := store.New(ctx, cfg.DatabaseURL())
		if err != nil {
			utils.ShowError("Failed to connect to database", err, nil)
			return errReported
		}
		defer db.Close(context.Background())
		if err := db.Reset(ctx); err != nil {
			utils.ShowError("Failed to reset database", err, nil)
			return errReported
		}
		cleared = true
	}

	if !cleared {
		fmt.Fprintln(out, "[SYSTEM] Reset cancelled, nothing was deleted.")
		return nil
	}
	fmt.Fprintln(out, "✨ Reset Complete.")
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
