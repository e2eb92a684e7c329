package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB        bool
	resetArtifacts bool
	resetYes       bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (database gallery, recognition artifacts)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetArtifacts {
			resetDB = true
			resetArtifacts = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB && (resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all database tables?")) {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("🗑️  Clearing Database...")
			if err := s.Reset(cmd.Context()); err != nil {
				utils.ShowError(os.Stderr, "Failed to reset database", err, nil)
				return err
			}
		}

		if resetArtifacts && (resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all artifacts in %s?", cfg.Gallery.Dir))) {
			fmt.Println("🗑️  Clearing Recognition Artifacts...")
			n := removeArtifacts(cfg.Gallery.Dir)
			fmt.Printf("   removed %d files\n", n)
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "database", false, "Clear the PostgreSQL gallery")
	resetCmd.Flags().BoolVar(&resetArtifacts, "artifacts", false, "Delete face_recognition_*.json artifacts in gallery.dir")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeArtifacts deletes recognition artifacts only, leaving anything else
// in dir alone.
func removeArtifacts(dir string) int {
	matches, _ := filepath.Glob(filepath.Join(dir, "face_recognition_*.json"))
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
			continue
		}
		removed++
	}
	return removed
}
