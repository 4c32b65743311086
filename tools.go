package analyst

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/tools.yaml
var defaultCatalogYAML []byte

// Tool names offered to the model
const (
	ToolGetRealtimeSnapshot = "get_realtime_snapshot"
	ToolGetHistoricalPrices = "get_historical_prices"
	ToolGetTickerDetails    = "get_ticker_details"
)

// ToolKind is the closed set of tools the executor knows how to run.
type ToolKind int

const (
	ToolKindUnknown ToolKind = iota
	ToolKindRealtimeSnapshot
	ToolKindHistoricalPrices
	ToolKindTickerDetails
)

// toolKinds maps wire names to kinds. Anything absent resolves to ToolKindUnknown.
var toolKinds = map[string]ToolKind{
	ToolGetRealtimeSnapshot: ToolKindRealtimeSnapshot,
	ToolGetHistoricalPrices: ToolKindHistoricalPrices,
	ToolGetTickerDetails:    ToolKindTickerDetails,
}

// ResolveTool returns the kind for a tool name.
func ResolveTool(name string) ToolKind {
	if k, ok := toolKinds[name]; ok {
		return k
	}
	return ToolKindUnknown
}

func (k ToolKind) String() string {
	switch k {
	case ToolKindRealtimeSnapshot:
		return ToolGetRealtimeSnapshot
	case ToolKindHistoricalPrices:
		return ToolGetHistoricalPrices
	case ToolKindTickerDetails:
		return ToolGetTickerDetails
	default:
		return "unknown"
	}
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	InputSchema map[string]any `yaml:"input_schema"`
}

// catalogFile is the YAML layout of a tool catalog.
type catalogFile struct {
	Version     string           `yaml:"version"`
	LastUpdated string           `yaml:"last_updated"`
	Tools       []ToolDefinition `yaml:"tools"`
}

// Catalog is an immutable set of tool definitions with compiled input schemas.
type Catalog struct {
	version string
	defs    []ToolDefinition
	schemas map[string]*jsonschema.Schema
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
})

// DefaultCatalog returns the embedded three-tool market-data catalog.
func DefaultCatalog() (*Catalog, error) {
	return defaultCatalog()
}

// LoadCatalogFromFile reads a catalog from a YAML file.
// The file format should match the embedded catalog.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a Catalog from YAML. Every tool must map to a known
// ToolKind and carry an object input schema.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool catalog: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("tool catalog is empty")
	}

	c := &Catalog{
		version: file.Version,
		defs:    make([]ToolDefinition, 0, len(file.Tools)),
		schemas: make(map[string]*jsonschema.Schema, len(file.Tools)),
	}
	for _, def := range file.Tools {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if ResolveTool(def.Name) == ToolKindUnknown {
			return nil, fmt.Errorf("tool %s has no executor", def.Name)
		}
		if _, dup := c.schemas[def.Name]; dup {
			return nil, fmt.Errorf("tool %s is defined twice", def.Name)
		}
		schema, err := compileSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
		}
		c.schemas[def.Name] = schema
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Validate checks if the ToolDefinition is properly configured
func (d ToolDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Description == "" {
		return fmt.Errorf("tool %s: description is required", d.Name)
	}
	if schemaType, ok := d.InputSchema["type"].(string); !ok || schemaType != "object" {
		return fmt.Errorf("tool %s: input schema must be a JSON schema with type 'object'", d.Name)
	}
	return nil
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Definitions returns a copy of the tool definitions in catalog order.
func (c *Catalog) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Has reports whether the catalog offers a tool.
func (c *Catalog) Has(name string) bool {
	_, ok := c.schemas[name]
	return ok
}

// ValidateInput checks a finalized tool input against the tool's schema.
func (c *Catalog) ValidateInput(name string, input map[string]any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	// Round-trip so the validator sees plain JSON types only.
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if err := c.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
