// Package config loads and validates the fold-host configuration.
//
// The host consumes a fully-resolved list of connection descriptors; scope
// merging across project/workspace/user config files happens upstream. A
// config file names each connection, its transport (stdio subprocess,
// streaming HTTP endpoint, or persistent socket), the capability classes it
// may expose, its timeout, routing weight, static exclusions, and root
// boundaries.
//
// Both YAML and TOML files are supported, selected by file extension.
// Values in the form ${VAR_NAME} are expanded from the environment before
// parsing, so secrets never need to live in the file itself.
package config
