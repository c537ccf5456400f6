package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/facegate/internal/app"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the gallery embeddings into PostgreSQL (pgvector)",
	Long:  "Loads the gallery and replaces the contents of the known_faces table with it.\nThe table is only an export target: the gallery directory stays the source of truth.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExport(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context) error {
	return withApp(func(a *app.App, e *engine) error {
		db, err := store.New(ctx, cfg.DatabaseURL())
		if err != nil {
			utils.ShowError("Failed to connect to database", err, nil)
			return errReported
		}
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		defer db.Close(context.Background())

		n, err := db.ReplaceGallery(ctx, a.Gallery.Entries())
		if err != nil {
			utils.ShowError("Failed to export gallery", err, nil)
			return errReported
		}
		fmt.Printf("✅ Exported %d face(s) to known_faces\n", n)
		return nil
	})
}
