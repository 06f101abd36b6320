// Package config resolves the small set of explicit values the patch
// engine's components need: where the manifest lives, where blobs live,
// and how (or whether) to reach a remote blob provider.
package config

import (
	"os"
	"path/filepath"
)

const (
	defaultManifestDir  = ".socket"
	defaultManifestFile = "manifest.json"
	blobsSubdir         = "blobs"

	providerURLEnv = "SOCKET_PATCH_PROVIDER_URL"
)

// Config holds the resolved paths and provider settings for one invocation.
type Config struct {
	WorkDir      string
	ManifestPath string
	BlobDir      string
	ProviderURL  string
	Offline      bool
}

// Option customizes a Config produced by Load.
type Option func(*Config)

// WithWorkDir overrides the working directory that paths are resolved
// relative to. Defaults to os.Getwd().
func WithWorkDir(dir string) Option {
	return func(c *Config) { c.WorkDir = dir }
}

// WithManifestPath overrides the manifest location entirely, bypassing the
// default ".socket/manifest.json" resolution.
func WithManifestPath(path string) Option {
	return func(c *Config) { c.ManifestPath = path }
}

// WithOffline forces offline mode regardless of environment configuration.
func WithOffline(offline bool) Option {
	return func(c *Config) { c.Offline = offline }
}

// Load resolves a Config from the current environment and working
// directory, applying opts afterward so callers (the CLI's flags) can
// override any field.
func Load(opts ...Option) (Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	c := Config{
		WorkDir:     wd,
		ProviderURL: os.Getenv(providerURLEnv),
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.ManifestPath == "" {
		c.ManifestPath = filepath.Join(c.WorkDir, defaultManifestDir, defaultManifestFile)
	}
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(filepath.Dir(c.ManifestPath), blobsSubdir)
	}

	return c, nil
}
