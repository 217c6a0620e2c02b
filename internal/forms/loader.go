// Package forms provides YAML loading for questionnaire definitions.
package forms

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/karuna-health/intake/internal/models"
)

// LoadDirectory reads every .yaml/.yml file in dir and registers the form
// definitions it contains. Each file holds one definition. Files that fail
// to parse or validate abort the load so a misconfigured catalog is caught
// at startup rather than mid-intake.
func LoadDirectory(registry *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read forms directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := LoadFile(registry, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
		loaded++
	}
	slog.Info("Forms loaded from directory", "dir", dir, "count", loaded)
	return nil
}

// LoadFile reads a single YAML form definition and registers it.
func LoadFile(registry *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read form file %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return fmt.Errorf("form file %s: %w", path, err)
	}
	if err := registry.Register(def); err != nil {
		return fmt.Errorf("form file %s: %w", path, err)
	}
	slog.Debug("Form loaded", "path", path, "formID", def.ID)
	return nil
}

// Parse decodes one YAML form definition. Unknown fields are rejected so
// typos in hand-written catalogs surface as errors instead of silently
// dropping rules.
func Parse(data []byte) (models.FormDefinition, error) {
	var def models.FormDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return def, fmt.Errorf("failed to parse form definition: %w", err)
	}
	return def, nil
}
