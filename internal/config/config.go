package config

import (
	"log/slog"
	"promptx/internal/research"
	"promptx/internal/storage"
)

// StorageConfig selects where workspace artifacts live. Setting
// LOCAL_STORAGE_DIR switches to plain filesystem storage, otherwise the S3
// settings are used.
type StorageConfig struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	LocalStorageDir string `env:"LOCAL_STORAGE_DIR"`

	WorkspaceBucket string `env:"WORKSPACE_BUCKET" envDefault:"workspaces"`
}

func (c *StorageConfig) NewProvider() (storage.Provider, error) {
	if c.LocalStorageDir != "" {
		return storage.NewLocalProvider(c.LocalStorageDir)
	}

	if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
		slog.Warn("AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY is not set, S3 requests will likely fail")
	}

	return storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     c.S3EndpointURL,
		S3AccessKeyID:     c.S3AccessKeyID,
		S3SecretAccessKey: c.S3SecretAccessKey,
		S3Region:          c.S3Region,
	})
}

// ResearchConfig points the worker at the external search and page reader
// services.
type ResearchConfig struct {
	SearxURL  string `env:"SEARXNG_URL" envDefault:"http://localhost:8080"`
	ReaderURL string `env:"READER_URL" envDefault:"http://localhost:3000"`
}

func (c *ResearchConfig) NewSearcher() research.Searcher {
	return research.NewSearxClient(c.SearxURL)
}

func (c *ResearchConfig) NewPageFetcher() research.PageFetcher {
	return research.NewPageReader(c.ReaderURL)
}
