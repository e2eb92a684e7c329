package config

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detection: Detection{
			Enabled:        false,
			BoxColor:       "#FF0000",
			LineWidth:      2,
			MinConfidence:  0.5,
			MatchThreshold: 0.6,
			ReinitOnSeek:   true,
		},
		Label: Label{
			FontScale:  0.8,
			Padding:    10,
			Background: "rgba(0, 0, 0, 0.7)",
			FontColor:  "#FFFFFF",
		},
		Lifecycle: Lifecycle{
			MaxInitAttempts:     3,
			RetryDelayMS:        2000,
			VideoPollIntervalMS: 100,
			VideoPollAttempts:   100,
			PagePollIntervalMS:  200,
			PagePollAttempts:    50,
			TimingWindow:        30,
		},
		Navigation: Navigation{
			TargetPattern: "/watch",
		},
		Engine: Engine{
			Python:           "python3",
			Script:           "python/worker.py",
			ModelsDir:        "~/.local/share/faceoverlay/models",
			WorkingWidth:     416,
			RequestTimeoutMS: 5000,
		},
		Gallery: Gallery{
			Dir: "~/.local/share/faceoverlay/gallery",
		},
		Player: Player{
			DisplayWidth:  1280,
			DisplayHeight: 720,
			RefreshHz:     60,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}
