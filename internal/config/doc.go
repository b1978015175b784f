// Package config provides configuration loading and validation for the visualizer.
// It reads a YAML file over built-in defaults, loads an optional .env file and
// applies RESONANCE_* environment overrides before validating every section.
package config
