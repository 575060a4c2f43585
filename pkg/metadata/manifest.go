package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/oneconcern/collection-registry/pkg/model"
)

// Manifest describes what a collection exposes
type Manifest struct {
	Collection       string       `json:"collection"`
	LogoURL          string       `json:"logo_url,omitempty"`
	DocumentationURL string       `json:"documentation_url,omitempty"`
	Blocks           []BlockSpec  `json:"blocks,omitempty"`
	Flows            []FlowSpec   `json:"flows,omitempty"`
	Workers          []WorkerSpec `json:"workers,omitempty"`
}

// BlockSpec declares a configuration block type
type BlockSpec struct {
	Slug             string          `json:"slug"`
	Name             string          `json:"name"`
	Class            string          `json:"class,omitempty"`
	Abstract         bool            `json:"abstract,omitempty"`
	LogoURL          string          `json:"logo_url,omitempty"`
	DocumentationURL string          `json:"documentation_url,omitempty"`
	Description      string          `json:"description,omitempty"`
	CodeExample      string          `json:"code_example,omitempty"`
	Version          string          `json:"version,omitempty"`
	Capabilities     []string        `json:"capabilities,omitempty"`
	Fields           json.RawMessage `json:"fields,omitempty"`
}

// FlowSpec declares a workflow entry point
type FlowSpec struct {
	Name       string          `json:"name"`
	Function   string          `json:"function"`
	Module     string          `json:"module"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Returns    string          `json:"returns,omitempty"`
	Examples   []string        `json:"examples,omitempty"`
}

// WorkerSpec declares an execution backend
type WorkerSpec struct {
	Type                        string          `json:"type"`
	Class                       string          `json:"class,omitempty"`
	DisplayName                 string          `json:"display_name,omitempty"`
	Description                 string          `json:"description,omitempty"`
	LogoURL                     string          `json:"logo_url,omitempty"`
	DocumentationURL            string          `json:"documentation_url,omitempty"`
	IsBeta                      bool            `json:"is_beta,omitempty"`
	DefaultBaseJobConfiguration json.RawMessage `json:"default_base_job_configuration,omitempty"`
}

// ParseManifest decodes a YAML (or JSON) manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate the manifest declarations
func (m *Manifest) Validate() error {
	if err := model.ValidateCollectionName(m.Collection); err != nil {
		return err
	}
	for i, b := range m.Blocks {
		if b.Slug == "" {
			return fmt.Errorf("%s: block #%d has no slug", m.Collection, i)
		}
	}
	for i, f := range m.Flows {
		if f.Function == "" || f.Module == "" {
			return fmt.Errorf("%s: flow #%d needs a function and a module", m.Collection, i)
		}
	}
	for i, w := range m.Workers {
		if w.Type == "" {
			return fmt.Errorf("%s: worker #%d has no type", m.Collection, i)
		}
	}
	return nil
}

// Marshal the manifest as YAML
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
