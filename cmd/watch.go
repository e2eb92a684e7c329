package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceoverlay/internal/cvhost"
	"github.com/andresmejia3/faceoverlay/internal/detector"
	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/host"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
	"github.com/andresmejia3/faceoverlay/internal/supervisor"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var (
	watchSources    []string
	watchGallery    string
	watchFromDB     bool
	watchAutoStart  bool
	watchNoControls bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [source...]",
	Short: "Play videos and overlay recognized faces on every frame",
	Long: `Plays the configured sources (or the ones given as arguments) in a window and
keeps a face detector attached to every source whose URL matches
navigation.target_pattern.

Control messages are read from stdin, one JSON object per line:

  {"action":"startDetection"}
  {"action":"stopDetection"}
  {"action":"updateColor","color":"#00FF00"}

Keys: n/p next/previous source, ,/. or arrows seek 5s, space pause,
+/- resize, q quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		sources := append(append([]string{}, args...), watchSources...)
		return runWatch(cmd.Context(), sources)
	},
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchSources, "source", "s", nil, "Video file, stream URL or camera index (repeatable, overrides player.sources)")
	watchCmd.Flags().StringVarP(&watchGallery, "gallery", "g", "", "Recognition artifact to use (default: newest in gallery.dir)")
	watchCmd.Flags().BoolVar(&watchFromDB, "from-db", false, "Load the gallery from the database instead of an artifact file")
	watchCmd.Flags().BoolVar(&watchAutoStart, "start", false, "Start detection immediately (default: detection.enabled)")
	watchCmd.Flags().BoolVar(&watchNoControls, "no-controls", false, "Ignore control messages on stdin")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, sources []string) error {
	// 1. One player per display
	lockPath := filepath.Join(os.TempDir(), "faceoverlay-watch.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another faceoverlay watch instance is already running")
	}
	defer lock.Unlock()

	// 2. Shared drawing state, updated by updateColor
	style, err := cfg.Style()
	if err != nil {
		return err
	}
	appearance := overlay.NewAppearance(style)

	// 3. Gallery source
	var loader detector.GalleryLoader = gallerySource(cfg, watchGallery)
	if watchFromDB {
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		loader = s
	}

	// 4. The engine outlives individual detectors so models load once
	eng := engine.NewPython(engineOptions(cfg), logger)
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine shutdown failed", logging.Error(err))
		}
	}()

	player, err := cvhost.New(playerOptions(cfg, sources), logger)
	if err != nil {
		utils.ShowError(os.Stderr, "Failed to open video source", err, nil)
		return err
	}
	defer player.Close()

	factory := func(ctx context.Context, page host.Page) (supervisor.Detector, error) {
		c, err := detector.Start(ctx, detector.Deps{
			Page:       page,
			Scheduler:  player,
			Engine:     eng,
			Gallery:    loader,
			Appearance: appearance,
			Logger:     logger,
		}, detectorOptions(cfg))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	newSupervisor := func() *supervisor.Supervisor {
		return supervisor.New(player, player, factory, supervisorOptions(cfg), logger)
	}
	dispatcher := supervisor.NewDispatcher(newSupervisor, appearance, logger)
	defer dispatcher.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watchAutoStart || cfg.Detection.Enabled {
		if err := dispatcher.Handle(ctx, supervisor.Message{Action: supervisor.ActionStart}); err != nil {
			return err
		}
	}

	// 5. Control channel
	if !watchNoControls {
		go func() {
			if err := dispatcher.Serve(ctx, os.Stdin, os.Stdout); err != nil {
				logger.Warn("control channel closed", logging.Error(err))
			}
		}()
	}

	fmt.Fprintln(os.Stderr, "🎬 Playing... press q to quit")

	// 6. The window must be driven from this goroutine
	return player.Run(ctx)
}
