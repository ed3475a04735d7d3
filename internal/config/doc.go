// Package config defines the installer settings and provides helpers to load,
// validate and save them in YAML format.
//
// The settings file is optional. Without it the installer puts packages into
// ./local_packages using pip from the bundled pip wheel.
package config
