package cmd

import (
	"github.com/andresmejia3/faceoverlay/internal/config"
	"github.com/andresmejia3/faceoverlay/internal/cvhost"
	"github.com/andresmejia3/faceoverlay/internal/detector"
	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/poll"
	"github.com/andresmejia3/faceoverlay/internal/supervisor"
)

// The helpers below translate the loaded configuration into the option
// structs of each package.

func engineOptions(c *config.Config) engine.Options {
	return engine.Options{
		Python:         c.Engine.Python,
		Script:         c.Engine.Script,
		ModelsDir:      c.Engine.ModelsDir,
		WorkingWidth:   c.Engine.WorkingWidth,
		RequestTimeout: c.RequestTimeout(),
	}
}

func detectorOptions(c *config.Config) detector.Options {
	return detector.Options{
		MaxAttempts: c.Lifecycle.MaxInitAttempts,
		RetryDelay:  c.RetryDelay(),
		VideoPoll: poll.Options{
			Interval:    c.VideoPollInterval(),
			MaxAttempts: c.Lifecycle.VideoPollAttempts,
		},
		MinConfidence:  c.Detection.MinConfidence,
		MatchThreshold: c.Detection.MatchThreshold,
		ReinitOnSeek:   c.Detection.ReinitOnSeek,
		TimingWindow:   c.Lifecycle.TimingWindow,
	}
}

func supervisorOptions(c *config.Config) supervisor.Options {
	return supervisor.Options{
		TargetPattern: c.TargetPattern(),
		PagePoll: poll.Options{
			Interval:    c.PagePollInterval(),
			MaxAttempts: c.Lifecycle.PagePollAttempts,
		},
	}
}

func playerOptions(c *config.Config, sources []string) cvhost.Options {
	if len(sources) == 0 {
		sources = c.Player.Sources
	}
	return cvhost.Options{
		Sources:   sources,
		Display:   geometry.Size{Width: c.Player.DisplayWidth, Height: c.Player.DisplayHeight},
		RefreshHz: c.Player.RefreshHz,
		Title:     "faceoverlay",
	}
}

func gallerySource(c *config.Config, path string) gallery.FileSource {
	if path != "" {
		return gallery.FileSource{Path: path}
	}
	return gallery.FileSource{Path: c.Gallery.Path, Dir: c.Gallery.Dir}
}
