package cmd

import (
	"fmt"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old_name> <new_name>",
	Short: "Rename a person in the gallery",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRename(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(oldName, newName string) error {
	files, err := gallery.Rename(cfg.GalleryDir, oldName, newName)
	if err != nil {
		utils.ShowError("Failed to rename "+oldName, err, nil)
		return errReported
	}

	for _, f := range files {
		fmt.Printf("✅ %s is now labeled '%s' (%s)\n", oldName, newName, f)
	}
	return nil
}
