package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/schema"
)

// block types sharing their slug with core blocks are not published
var blocksBlocklist = map[string]bool{
	"k8s-job":                true,
	"custom-webhook":         true,
	"slack-incoming-webhook": true,
	"secret-str":             true,
	"secret-int":             true,
	"secret-dict":            true,
	"secret-list":            true,
	"secret-float":           true,
}

// base worker classes are not published
var workersBlocklist = map[string]bool{
	"BaseWorker":  true,
	"BlockWorker": true,
}

const (
	baseBlockClass = "Block"
	docsSiteURL    = "https://prefecthq.github.io/"
	githubURL      = "https://github.com/"
)

var (
	defaultFlowParameters = json.RawMessage(`{"title":"Parameters","type":"object","properties":{}}`)
	emptyObject           = json.RawMessage(`{}`)
)

// agentWorker is always published with the core collection
var agentWorker = WorkerItem{
	Type:                        "prefect-agent",
	DisplayName:                 "Prefect Agent",
	Description:                 "Execute flow runs on heterogeneous infrastructure using infrastructure blocks.",
	DocumentationURL:            "https://docs.prefect.io/latest/concepts/work-pools/#agent-overview",
	LogoURL:                     "https://cdn.sanity.io/images/3ugk85nk/production/c771bb53894c877e169c8db158c5598558b8f175-24x24.svg",
	InstallCommand:              "pip install " + model.CoreCollection,
	DefaultBaseJobConfiguration: emptyObject,
}

// BlockItem is the published descriptor of a block type. Keys are declared in sorted order.
type BlockItem struct {
	BlockSchema      BlockSchema `json:"block_schema"`
	CodeExample      string      `json:"code_example"`
	Description      string      `json:"description"`
	DocumentationURL *string     `json:"documentation_url"`
	LogoURL          string      `json:"logo_url"`
	Name             string      `json:"name"`
	Slug             string      `json:"slug"`
}

// BlockSchema is the published schema of a block type
type BlockSchema struct {
	Capabilities []string        `json:"capabilities"`
	Checksum     string          `json:"checksum"`
	Fields       json.RawMessage `json:"fields"`
	Version      string          `json:"version"`
}

// FlowItem is the published descriptor of a flow. Keys are declared in sorted order.
type FlowItem struct {
	Description        FlowDescription `json:"description"`
	DocumentationURL   string          `json:"documentation_url"`
	Entrypoint         string          `json:"entrypoint"`
	InstallCommand     string          `json:"install_command"`
	LogoURL            string          `json:"logo_url"`
	Name               string          `json:"name"`
	Parameters         json.RawMessage `json:"parameters"`
	PathContainingFlow string          `json:"path_containing_flow"`
	RepoURL            string          `json:"repo_url"`
	Slug               string          `json:"slug"`
}

// FlowDescription sums up the documentation of a flow
type FlowDescription struct {
	Examples []string `json:"examples"`
	Returns  string   `json:"returns,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// WorkerItem is the published descriptor of a worker. Keys are declared in sorted order.
type WorkerItem struct {
	DefaultBaseJobConfiguration json.RawMessage `json:"default_base_job_configuration"`
	Description                 string          `json:"description"`
	DisplayName                 string          `json:"display_name,omitempty"`
	DocumentationURL            string          `json:"documentation_url,omitempty"`
	InstallCommand              string          `json:"install_command"`
	IsBeta                      *bool           `json:"is_beta,omitempty"`
	LogoURL                     string          `json:"logo_url,omitempty"`
	Type                        string          `json:"type"`
}

// Generator builds validated records out of manifests
type Generator struct {
	validator *schema.Validator
	owner     string
	l         *zap.Logger
}

// GeneratorOption is a functor to pass optional parameters to the generator
type GeneratorOption func(*Generator)

// Owner of the collection repositories, used to build repository URLs
func Owner(owner string) GeneratorOption {
	return func(g *Generator) {
		if owner != "" {
			g.owner = owner
		}
	}
}

// Logger for the generator
func Logger(logger *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.l = logger
		}
	}
}

// NewGenerator builds a metadata generator validating items with the provided validator
func NewGenerator(validator *schema.Validator, opts ...GeneratorOption) *Generator {
	g := &Generator{
		validator: validator,
		owner:     "PrefectHQ",
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(g)
	}
	return g
}

// Generate the record of one variety for a collection release
func (g *Generator) Generate(m *Manifest, variety model.Variety, version string) (model.Record, error) {
	switch variety {
	case model.VarietyBlock:
		return g.Blocks(m, version)
	case model.VarietyFlow:
		return g.Flows(m)
	case model.VarietyWorker:
		return g.Workers(m)
	default:
		return nil, fmt.Errorf("unknown metadata variety %q", variety)
	}
}

// Checksum of the fields of a block schema: sha256 of their canonical JSON form
func Checksum(fields json.RawMessage) (string, error) {
	if len(fields) == 0 {
		fields = emptyObject
	}
	canonical, err := jcs.Transform(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalizing block fields: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func installCommand(collection string) string {
	return "pip install " + collection
}

// Blocks generates the block record of a collection release
func (g *Generator) Blocks(m *Manifest, version string) (model.Record, error) {
	items := make(map[string]BlockItem, len(m.Blocks))
	for _, spec := range m.Blocks {
		if spec.Class == baseBlockClass || spec.Abstract || blocksBlocklist[spec.Slug] {
			g.l.Debug("skipping block", zap.String("collection", m.Collection), zap.String("slug", spec.Slug))
			continue
		}
		if _, dup := items[spec.Slug]; dup {
			return nil, fmt.Errorf("%s: duplicate block slug %q", m.Collection, spec.Slug)
		}
		item, err := g.block(m, spec, version)
		if err != nil {
			return nil, err
		}
		items[spec.Slug] = item
	}
	return validRecord(g, model.VarietyBlock, items)
}

func (g *Generator) block(m *Manifest, spec BlockSpec, version string) (BlockItem, error) {
	fields := spec.Fields
	if len(fields) == 0 {
		fields = emptyObject
	}
	checksum, err := Checksum(fields)
	if err != nil {
		return BlockItem{}, fmt.Errorf("%s: block %q: %w", m.Collection, spec.Slug, err)
	}
	capabilities := append([]string{}, spec.Capabilities...)
	sort.Strings(capabilities)

	blockVersion := spec.Version
	if blockVersion == "" {
		blockVersion = strings.TrimPrefix(version, "v")
	}
	logoURL := spec.LogoURL
	if logoURL == "" {
		logoURL = m.LogoURL
	}
	var docURL *string
	if spec.DocumentationURL != "" {
		docURL = &spec.DocumentationURL
	} else if m.DocumentationURL != "" {
		docURL = &m.DocumentationURL
	}
	description := spec.Description
	if m.Collection != model.CoreCollection {
		description += fmt.Sprintf(
			" This block is part of the %[1]s collection. Install %[1]s with `pip install %[1]s` to use this block.",
			m.Collection)
	}
	return BlockItem{
		Name:             spec.Name,
		Slug:             spec.Slug,
		LogoURL:          logoURL,
		DocumentationURL: docURL,
		Description:      description,
		CodeExample:      spec.CodeExample,
		BlockSchema: BlockSchema{
			Checksum:     checksum,
			Fields:       fields,
			Capabilities: capabilities,
			Version:      blockVersion,
		},
	}, nil
}

// Flows generates the flow record of a collection. The core collection publishes no flow.
func (g *Generator) Flows(m *Manifest) (model.Record, error) {
	items := make(map[string]FlowItem, len(m.Flows))
	if m.Collection == model.CoreCollection {
		return validRecord(g, model.VarietyFlow, items)
	}
	logoURL := m.LogoURL
	if logoURL == "" {
		logoURL = firstBlockLogo(m)
	}
	for _, spec := range m.Flows {
		if _, dup := items[spec.Function]; dup {
			return nil, fmt.Errorf("%s: duplicate flow %q", m.Collection, spec.Function)
		}
		items[spec.Function] = g.flow(m, spec, logoURL)
	}
	return validRecord(g, model.VarietyFlow, items)
}

func firstBlockLogo(m *Manifest) string {
	blocks := append([]BlockSpec(nil), m.Blocks...)
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Slug < blocks[j].Slug })
	for _, b := range blocks {
		if b.LogoURL != "" {
			return b.LogoURL
		}
	}
	return ""
}

func (g *Generator) flow(m *Manifest, spec FlowSpec, logoURL string) FlowItem {
	filePath := strings.ReplaceAll(spec.Module, ".", "/") + ".py"
	docPath := strings.ReplaceAll(strings.ReplaceAll(spec.Module, ".", "/"), "_", "-")
	parameters := spec.Parameters
	if len(parameters) == 0 {
		parameters = defaultFlowParameters
	}
	name := spec.Name
	if name == "" {
		name = strings.ReplaceAll(spec.Function, "_", "-")
	}
	examples := append([]string{}, spec.Examples...)
	return FlowItem{
		Description: FlowDescription{
			Examples: examples,
			Returns:  spec.Returns,
			Summary:  spec.Summary,
		},
		DocumentationURL:   docsSiteURL + docPath + "/#" + spec.Module + "." + spec.Function,
		Entrypoint:         filePath + ":" + spec.Function,
		InstallCommand:     installCommand(m.Collection),
		LogoURL:            logoURL,
		Name:               name,
		Parameters:         parameters,
		PathContainingFlow: filePath,
		RepoURL:            githubURL + g.owner + "/" + m.Collection,
		Slug:               spec.Function,
	}
}

// Workers generates the worker record of a collection.
// The core collection always publishes the agent.
func (g *Generator) Workers(m *Manifest) (model.Record, error) {
	items := make(map[string]WorkerItem, len(m.Workers)+1)
	if m.Collection == model.CoreCollection {
		items[agentWorker.Type] = agentWorker
	}
	seen := make(map[string]bool, len(m.Workers))
	for _, spec := range m.Workers {
		if workersBlocklist[spec.Class] {
			g.l.Debug("skipping worker", zap.String("collection", m.Collection), zap.String("type", spec.Type))
			continue
		}
		if seen[spec.Type] {
			return nil, fmt.Errorf("%s: duplicate worker %q", m.Collection, spec.Type)
		}
		seen[spec.Type] = true
		items[spec.Type] = g.worker(m, spec)
	}
	return validRecord(g, model.VarietyWorker, items)
}

func (g *Generator) worker(m *Manifest, spec WorkerSpec) WorkerItem {
	displayName := spec.DisplayName
	if displayName == "" {
		displayName = spec.Type
	}
	config := spec.DefaultBaseJobConfiguration
	if len(config) == 0 {
		config = emptyObject
	}
	isBeta := spec.IsBeta
	return WorkerItem{
		DefaultBaseJobConfiguration: config,
		Description:                 spec.Description,
		DisplayName:                 displayName,
		DocumentationURL:            spec.DocumentationURL,
		InstallCommand:              installCommand(m.Collection),
		IsBeta:                      &isBeta,
		LogoURL:                     spec.LogoURL,
		Type:                        spec.Type,
	}
}

// validRecord serializes items then validates each of them
func validRecord[T any](g *Generator, variety model.Variety, items map[string]T) (model.Record, error) {
	record, err := model.RecordFrom(items)
	if err != nil {
		return nil, err
	}
	if g.validator != nil {
		if err := g.validator.ValidateRecord(variety, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}
