// Package catalog imports template definitions from JSON files into the
// store. Each file holds one template, validated against an embedded JSON
// Schema and upserted by template name: re-running an import refreshes
// existing plans (fanning out to their onboardings through reconciliation)
// instead of duplicating them.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/services"
)

//go:embed template_schema.json
var templateSchemaJSON string

// FileError records why one definition file was rejected.
type FileError struct {
	File string
	Err  error
}

// Result summarizes one import run.
type Result struct {
	Created int
	Updated int
	Failed  []FileError
}

// Importer loads template definition files through the template service, so
// imported updates trigger the same reconciliation as API edits.
type Importer struct {
	templates *services.Templates
	logger    *slog.Logger
}

func NewImporter(templates *services.Templates, logger *slog.Logger) *Importer {
	return &Importer{
		templates: templates,
		logger:    logger.With("module", "catalog"),
	}
}

// ImportDir imports every *.json file directly under dir, in name order. A
// file that fails validation or storage is recorded in the result and logged;
// it never aborts the rest of the import. The returned error covers only the
// directory read itself.
func (i *Importer) ImportDir(ctx context.Context, dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	result := &Result{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		created, err := i.ImportFile(ctx, path)
		if err != nil {
			i.logger.ErrorContext(ctx, "Failed to import template definition", "file", path, "error", err)
			result.Failed = append(result.Failed, FileError{File: path, Err: err})

			continue
		}

		if created {
			result.Created++
		} else {
			result.Updated++
		}

		i.logger.InfoContext(ctx, "Imported template definition", "file", path, "created", created)
	}

	return result, nil
}

// ImportFile validates and upserts a single definition file. The boolean
// reports whether a new template was created, as opposed to an existing one
// being updated.
func (i *Importer) ImportFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read template definition: %w", err)
	}

	if err := validateDefinition(data); err != nil {
		return false, err
	}

	var def definition
	if err := json.Unmarshal(data, &def); err != nil {
		return false, fmt.Errorf("failed to decode template definition: %w", err)
	}

	existing, found, err := i.templates.GetByName(ctx, def.Name)
	if err != nil {
		return false, err
	}

	if found {
		if _, err := i.templates.Update(ctx, existing.ID, def.template()); err != nil {
			return false, err
		}

		return false, nil
	}

	if _, err := i.templates.Create(ctx, def.template()); err != nil {
		return false, err
	}

	return true, nil
}

// definition is the on-disk shape of a template. It deliberately carries no
// id or timestamps; identity comes from the name and the rest from the store.
type definition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Role        string        `json:"role"`
	IsActive    *bool         `json:"is_active"`
	Steps       []models.Step `json:"steps"`
}

// template maps the definition onto a model. Catalog templates default to
// active when the file does not say otherwise.
func (d definition) template() *models.Template {
	tmpl := &models.Template{
		Name:        d.Name,
		Description: d.Description,
		Role:        d.Role,
		Steps:       d.Steps,
		IsActive:    d.IsActive == nil || *d.IsActive,
	}

	return tmpl
}

func validateDefinition(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(templateSchemaJSON)
	dataLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate template definition: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("template definition is invalid: %s", strings.Join(details, "; "))
	}

	return nil
}
