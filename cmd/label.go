package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <person_id> <name>",
	Short: "Rename a person in the database gallery",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid person ID %q: %w", args[0], err)
		}
		return runLabel(cmd.Context(), id, args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id int, name string) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	if err := s.RenamePerson(ctx, id, name); err != nil {
		utils.ShowError(os.Stderr, "Failed to label person", err, nil)
		return err
	}
	fmt.Printf("✅ Person %d labeled as '%s'\n", id, name)
	return nil
}
