package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/store"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/spf13/cobra"
)

var exportDir string

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the recognition gallery stored in PostgreSQL",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known people in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		people, err := s.ListPeople(cmd.Context())
		if err != nil {
			utils.ShowError(os.Stderr, "Failed to list people", err, nil)
			return err
		}
		if len(people) == 0 {
			fmt.Println("No people found in database.")
			return nil
		}
		fmt.Println(renderTable([]string{"ID", "Name", "Descriptors", "Created"}, peopleRows(people),
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
		return nil
	},
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <artifact.json>",
	Short: "Add the descriptors of a recognition artifact to the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		artifact, err := gallery.Read(args[0])
		if err != nil {
			utils.ShowError(os.Stderr, "Failed to read artifact", err, nil)
			return err
		}
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		n, err := s.ImportArtifact(cmd.Context(), artifact)
		if err != nil {
			utils.ShowError(os.Stderr, "Import failed", err, nil)
			return err
		}
		fmt.Printf("✅ Imported %d descriptors for %d people\n", n, artifact.TotalPeople)
		return nil
	},
}

var galleryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the database gallery as a recognition artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		g, err := s.LoadGallery(cmd.Context())
		if err != nil {
			utils.ShowError(os.Stderr, "Failed to load gallery", err, nil)
			return err
		}
		if len(g) == 0 {
			return fmt.Errorf("database gallery is empty")
		}
		dir := exportDir
		if dir == "" {
			dir = cfg.Gallery.Dir
		}
		path, err := gallery.Write(dir, gallery.FromGallery(g, time.Now()))
		if err != nil {
			utils.ShowError(os.Stderr, "Failed to write artifact", err, nil)
			return err
		}
		fmt.Printf("✅ Exported %d people to %s\n", len(g), path)
		return nil
	},
}

func init() {
	galleryExportCmd.Flags().StringVarP(&exportDir, "output", "o", "", "Artifact output directory (default: gallery.dir)")
	galleryCmd.AddCommand(galleryListCmd, galleryImportCmd, galleryExportCmd)
	rootCmd.AddCommand(galleryCmd)
}

func peopleRows(people []store.Person) [][]string {
	rows := make([][]string, 0, len(people))
	for _, p := range people {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.ID),
			p.Name,
			fmt.Sprintf("%d", p.Count),
			p.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}
