package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.Detection.BoxColor = strings.TrimSpace(c.Detection.BoxColor)
	c.Label.Background = strings.TrimSpace(c.Label.Background)
	c.Label.FontColor = strings.TrimSpace(c.Label.FontColor)
	c.Navigation.TargetPattern = strings.TrimSpace(c.Navigation.TargetPattern)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Database.URL = strings.TrimSpace(c.Database.URL)

	if strings.TrimSpace(c.Engine.Python) == "" {
		c.Engine.Python = "python3"
	}

	return c.normalizePaths()
}

func (c *Config) normalizePaths() error {
	targets := []*string{
		&c.Engine.Script,
		&c.Engine.ModelsDir,
		&c.Gallery.Path,
		&c.Gallery.Dir,
		&c.Logging.Dir,
	}
	for _, p := range targets {
		expanded, err := expandPath(strings.TrimSpace(*p))
		if err != nil {
			return fmt.Errorf("normalize path %q: %w", *p, err)
		}
		*p = expanded
	}

	// Player sources may be device indexes or URLs; only expand home-relative paths.
	for i, src := range c.Player.Sources {
		src = strings.TrimSpace(src)
		if strings.HasPrefix(src, "~") {
			expanded, err := expandPath(src)
			if err != nil {
				return fmt.Errorf("normalize player source %q: %w", src, err)
			}
			src = expanded
		}
		c.Player.Sources[i] = src
	}
	return nil
}
