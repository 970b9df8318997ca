// Package config loads the relay's YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing, unset
// fields take the defaults in defaults.go, and Validate rejects
// inconsistent combinations.
package config
