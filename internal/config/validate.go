package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/andresmejia3/faceoverlay/internal/overlay"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateLifecycle(); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.Navigation.TargetPattern); err != nil {
		return fmt.Errorf("navigation.target_pattern: %w", err)
	}
	if c.Engine.WorkingWidth < 0 {
		return errors.New("engine.working_width must be >= 0")
	}
	if c.Engine.RequestTimeoutMS < 0 {
		return errors.New("engine.request_timeout_ms must be >= 0")
	}
	if c.Player.RefreshHz <= 0 {
		return errors.New("player.refresh_hz must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDetection() error {
	for key, value := range map[string]string{
		"detection.box_color": c.Detection.BoxColor,
		"label.background":    c.Label.Background,
		"label.font_color":    c.Label.FontColor,
	} {
		if _, err := overlay.ParseColor(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Detection.LineWidth <= 0 {
		return errors.New("detection.line_width must be positive")
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return errors.New("detection.min_confidence must be between 0 and 1")
	}
	if c.Detection.MatchThreshold <= 0 {
		return errors.New("detection.match_threshold must be positive")
	}
	if c.Label.FontScale <= 0 {
		return errors.New("label.font_scale must be positive")
	}
	if c.Label.Padding < 0 {
		return errors.New("label.padding must be >= 0")
	}
	return nil
}

func (c *Config) validateLifecycle() error {
	l := c.Lifecycle
	values := map[string]int{
		"lifecycle.max_init_attempts":      l.MaxInitAttempts,
		"lifecycle.video_poll_interval_ms": l.VideoPollIntervalMS,
		"lifecycle.video_poll_attempts":    l.VideoPollAttempts,
		"lifecycle.page_poll_interval_ms":  l.PagePollIntervalMS,
		"lifecycle.page_poll_attempts":     l.PagePollAttempts,
		"lifecycle.timing_window":          l.TimingWindow,
	}
	for key, v := range values {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if l.RetryDelayMS < 0 {
		return errors.New("lifecycle.retry_delay_ms must be >= 0")
	}
	return nil
}

// Style builds the overlay style from the detection and label sections.
func (c *Config) Style() (overlay.Style, error) {
	s := overlay.DefaultStyle()
	var err error
	if s.Color, err = overlay.ParseColor(c.Detection.BoxColor); err != nil {
		return s, fmt.Errorf("detection.box_color: %w", err)
	}
	if s.Label.Background, err = overlay.ParseColor(c.Label.Background); err != nil {
		return s, fmt.Errorf("label.background: %w", err)
	}
	if s.Label.FontColor, err = overlay.ParseColor(c.Label.FontColor); err != nil {
		return s, fmt.Errorf("label.font_color: %w", err)
	}
	s.LineWidth = c.Detection.LineWidth
	s.Label.FontScale = c.Label.FontScale
	s.Label.Padding = c.Label.Padding
	return s, nil
}
