// Package config provides configuration management for the qfwtop tool.
//
// It provides a single API for loading, validating, and writing the
// configuration file in YAML format, backed by a generated JSON schema.
package config
