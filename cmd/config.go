package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/andresmejia3/faceoverlay/internal/config"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Manage the configuration file",
	Annotations: map[string]string{"skip-config": "true"},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		written, err := initConfig(path, configForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote sample configuration to %s\n", written)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig(path string, force bool) (string, error) {
	var err error
	if path == "" {
		path, err = config.DefaultConfigPath()
	} else {
		path, err = config.ExpandPath(path)
	}
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	if err := config.CreateSample(path); err != nil {
		return "", err
	}
	return path, nil
}
