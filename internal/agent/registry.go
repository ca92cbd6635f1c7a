package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

// Limits on registry inputs.
const (
	// MaxToolNameLength is the maximum allowed tool name length.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum parameter payload size accepted for
	// validation (10MB).
	MaxToolParamsSize = 10 << 20
)

// toolNamePattern matches names that survive every provider wire format.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ModuleLoader finds and loads tool modules from the filesystem. The registry
// stays agnostic of the mechanism; internal/tools/loader provides the
// plugin-based implementation.
type ModuleLoader interface {
	// Discover lists loadable module paths under dir.
	Discover(dir string) ([]string, error)

	// Load opens one module and returns the tools it exports.
	Load(path string) ([]Tool, error)
}

// RegistryConfig configures a tool registry.
type RegistryConfig struct {
	// Logger receives registration warnings and load diagnostics.
	Logger *observability.Logger

	// Loader backs LoadFromDirectory and LoadFromModule. Without one, only
	// compiled-in tools can be registered.
	Loader ModuleLoader
}

// Registry holds the tools available to conversations. All methods are safe
// for concurrent use from any number of sessions.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	loader ModuleLoader
	logger *observability.Logger

	// schemas caches compiled parameter schemas keyed by schema text.
	schemas sync.Map
}

// NewRegistry creates an empty tool registry.
func NewRegistry(config RegistryConfig) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Registry{
		tools:  make(map[string]Tool),
		loader: config.Loader,
		logger: logger,
	}
}

// Register adds a tool to the registry. The name must be non-empty, at most
// MaxToolNameLength characters, and contain only [a-zA-Z0-9_-]; a non-empty
// schema must be valid JSON. Registering a name that already exists replaces
// the previous tool and logs a warning.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return &ValidationError{Field: "tool", Message: "tool is nil"}
	}

	name := tool.Name()
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "tool name is empty"}
	}
	if len(name) > MaxToolNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("tool name exceeds %d characters", MaxToolNameLength)}
	}
	if !toolNamePattern.MatchString(name) {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("tool name %q contains characters outside [a-zA-Z0-9_-]", name)}
	}
	if schema := tool.Schema(); len(schema) > 0 && !json.Valid(schema) {
		return &ValidationError{Field: "schema", Message: fmt.Sprintf("schema for tool %q is not valid JSON", name)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		r.logger.Warn(context.Background(), "replacing registered tool", "tool", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// GetAll returns a snapshot of every registered tool, sorted by name.
// Mutating the registry afterwards does not affect the returned slice.
func (r *Registry) GetAll() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// IsRegistered reports whether a tool is registered under name.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tools[name]
	return ok
}

// LoadFromDirectory discovers tool modules under dir and registers every tool
// they export. Individual module failures are logged and skipped; the count
// of successfully registered tools is returned.
func (r *Registry) LoadFromDirectory(dir string) (int, error) {
	if r.loader == nil {
		return 0, ErrNoLoader
	}

	paths, err := r.loader.Discover(dir)
	if err != nil {
		return 0, fmt.Errorf("discover tool modules in %s: %w", dir, err)
	}

	loaded := 0
	for _, path := range paths {
		n, err := r.LoadFromModule(path)
		loaded += n
		if err != nil {
			r.logger.Warn(context.Background(), "skipping tool module",
				"path", path,
				"error", err,
			)
		}
	}
	return loaded, nil
}

// LoadFromModule loads one module and registers the tools it exports. Tools
// that fail registration are logged and skipped; the count of successfully
// registered tools is returned.
func (r *Registry) LoadFromModule(path string) (int, error) {
	if r.loader == nil {
		return 0, ErrNoLoader
	}

	tools, err := r.loader.Load(path)
	if err != nil {
		return 0, fmt.Errorf("load tool module %s: %w", path, err)
	}

	loaded := 0
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			r.logger.Warn(context.Background(), "skipping tool from module",
				"path", path,
				"error", err,
			)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// ValidateTool checks that a registered tool is complete enough to advertise:
// it exists, has a description, and its schema both parses and compiles.
func (r *Registry) ValidateTool(name string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	tool, ok := r.Get(name)
	if !ok {
		result.addError(fmt.Sprintf("tool %q is not registered", name))
		return result
	}

	if strings.TrimSpace(tool.Description()) == "" {
		result.addError(fmt.Sprintf("tool %q has no description", name))
	}

	if schema := tool.Schema(); len(schema) > 0 {
		if !json.Valid(schema) {
			result.addError(fmt.Sprintf("schema for tool %q is not valid JSON", name))
		} else if _, err := r.compileSchema(schema); err != nil {
			result.addError(fmt.Sprintf("schema for tool %q does not compile: %v", name, err))
		}
	}

	return result
}

// ValidateToolParameters checks call parameters against the tool's schema and
// its own Validate method. A panicking Validate is captured and reported as a
// validation failure rather than crashing the caller.
func (r *Registry) ValidateToolParameters(ctx context.Context, name string, params json.RawMessage) *ValidationResult {
	result := &ValidationResult{Valid: true}

	tool, ok := r.Get(name)
	if !ok {
		result.addError(fmt.Sprintf("tool %q is not registered", name))
		return result
	}

	if len(params) > MaxToolParamsSize {
		result.addError(fmt.Sprintf("parameters exceed %d bytes", MaxToolParamsSize))
		return result
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if !json.Valid(params) {
		result.addError("parameters are not valid JSON")
		return result
	}

	if schema := tool.Schema(); len(schema) > 0 && json.Valid(schema) {
		compiled, err := r.compileSchema(schema)
		if err != nil {
			// A broken schema is the tool author's bug, not the caller's;
			// skip schema checking and rely on the tool's own Validate.
			r.logger.Warn(ctx, "tool schema does not compile, skipping schema validation",
				"tool", name,
				"error", err,
			)
		} else {
			var decoded any
			if err := json.Unmarshal(params, &decoded); err != nil {
				result.addError(fmt.Sprintf("parameters do not decode: %v", err))
				return result
			}
			if err := compiled.Validate(decoded); err != nil {
				result.addError(fmt.Sprintf("parameters violate schema: %v", err))
			}
		}
	}

	if err := validateWithRecover(ctx, tool, params); err != nil {
		result.addError(err.Error())
	}

	return result
}

func validateWithRecover(ctx context.Context, tool Tool, params json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool validation panicked: %v", rec)
		}
	}()
	return tool.Validate(ctx, params)
}

// compileSchema compiles a JSON schema, caching the result by schema text.
func (r *Registry) compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := r.schemas.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	r.schemas.Store(key, compiled)
	return compiled, nil
}

// CreateManifest snapshots every registered tool for external consumers: the
// provider request builder, the CLI tool list, and introspection endpoints.
func (r *Registry) CreateManifest() *models.Manifest {
	tools := r.GetAll()

	manifest := &models.Manifest{
		GeneratedAt: time.Now().UTC(),
		Tools:       make([]models.ToolManifest, 0, len(tools)),
	}
	for _, tool := range tools {
		entry := models.ToolManifest{
			Name:        tool.Name(),
			Description: tool.Description(),
			RiskLevel:   tool.RiskLevel(),
		}
		if schema := tool.Schema(); len(schema) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(schema, &decoded); err == nil {
				entry.Schema = decoded
			}
		}
		manifest.Tools = append(manifest.Tools, entry)
	}
	return manifest
}
