package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/app"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var listFromDB bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known faces in the gallery",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if listFromDB {
			return runListDB(cmd.Context())
		}
		return runList()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listFromDB, "db", false, "List the faces exported to PostgreSQL instead")
	rootCmd.AddCommand(listCmd)
}

func runList() error {
	return withApp(func(a *app.App, e *engine) error {
		entries := a.Gallery.Entries()
		if len(entries) == 0 {
			fmt.Println("No faces found in gallery.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tSOURCE\tDIM")
		fmt.Fprintln(w, "-\t----\t------\t---")
		for i, entry := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", i+1, entry.Name, entry.Source, len(entry.Embedding))
		}
		return w.Flush()
	})
}

func runListDB(ctx context.Context) error {
	db, err := store.New(ctx, cfg.DatabaseURL())
	if err != nil {
		utils.ShowError("Failed to connect to database", err, nil)
		return errReported
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	defer db.Close(context.Background())

	records, err := db.List(ctx)
	if err != nil {
		utils.ShowError("Failed to list exported faces", err, nil)
		return errReported
	}
	if len(records) == 0 {
		fmt.Println("No faces exported to database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSOURCE\tEXPORTED")
	fmt.Fprintln(w, "--\t----\t------\t--------")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.Source, r.ExportedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
