package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"promptx/internal/core"
	"promptx/pkg/api"

	"github.com/schollz/progressbar/v3"
)

// buildDir assembles the payload for a single workspace directory and writes
// it next to the inputs.
func buildDir(builder *core.PayloadBuilder, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, core.AnalysisArtifact))
	if err != nil {
		return fmt.Errorf("error reading analysis: %w", err)
	}

	var analysis api.Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return fmt.Errorf("error parsing analysis: %w", err)
	}

	raw, err = os.ReadFile(filepath.Join(dir, core.TestDataArtifact))
	if err != nil {
		return fmt.Errorf("error reading test data: %w", err)
	}

	var testData api.TestData
	if err := json.Unmarshal(raw, &testData); err != nil {
		return fmt.Errorf("error parsing test data: %w", err)
	}

	messages, err := builder.Build(analysis, testData)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing payload: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, core.PayloadArtifact), data, 0644)
}

func main() {
	var root, placeholder string
	flag.StringVar(&root, "root", ".", "directory containing one subdirectory per workspace")
	flag.StringVar(&placeholder, "placeholder", core.DefaultPlaceholder, "runtime input marker to embed in each payload")
	flag.Parse()

	entries, err := os.ReadDir(root)
	if err != nil {
		log.Fatalf("error reading root directory: %v", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, core.AnalysisArtifact)); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, core.TestDataArtifact)); err != nil {
			continue
		}
		dirs = append(dirs, dir)
	}

	if len(dirs) == 0 {
		log.Fatalf("no subdirectories of %s contain both %s and %s", root, core.AnalysisArtifact, core.TestDataArtifact)
	}

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{Placeholder: placeholder})
	if err != nil {
		log.Fatalf("error creating payload builder: %v", err)
	}

	bar := progressbar.NewOptions(len(dirs),
		progressbar.OptionSetDescription("⏳ processing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	failures := 0
	for _, dir := range dirs {
		if err := buildDir(builder, dir); err != nil {
			log.Printf("error building payload for %s: %v", dir, err)
			failures++
		}
		_ = bar.Add(1)
	}

	fmt.Printf("built %d of %d payloads\n", len(dirs)-failures, len(dirs))
	if failures > 0 {
		os.Exit(1)
	}
}
