// Package config loads the TOML configuration, applying defaults,
// normalization, and validation in that order.
package config
