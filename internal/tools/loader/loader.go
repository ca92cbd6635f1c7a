// Package loader loads tool modules from shared-object files at runtime and
// keeps a registry in sync with a module directory. Modules are Go plugins,
// so loading is available on Linux and macOS only; the Windows build exposes
// the same API and reports loading as unsupported.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/warden/internal/agent"
)

// ExportSymbol is the symbol a tool module must export. It is either a
// variable of type []any or a func() []any; every element must implement
// agent.Tool. Module authors import pkg/models for the risk level type and
// need nothing from internal packages.
const ExportSymbol = "WardenTools"

// moduleSuffix marks loadable module files.
const moduleSuffix = ".so"

// Loader implements agent.ModuleLoader on top of the plugin package.
type Loader struct{}

// New creates a module loader.
func New() *Loader {
	return &Loader{}
}

// Discover lists module files directly under dir, sorted by name. A missing
// directory is not an error; it reports no modules.
func (l *Loader) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read module directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), moduleSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Load opens one module and returns the tools it exports.
func (l *Loader) Load(path string) ([]agent.Tool, error) {
	symbol, err := lookupExport(path)
	if err != nil {
		return nil, err
	}
	return exportedTools(symbol)
}

// exportedTools coerces the module's export into tools. Lookup returns a
// pointer for variable symbols, so both forms are accepted.
func exportedTools(symbol any) ([]agent.Tool, error) {
	var entries []any
	switch v := symbol.(type) {
	case *[]any:
		entries = *v
	case []any:
		entries = v
	case func() []any:
		entries = v()
	default:
		return nil, fmt.Errorf("symbol %s has unsupported type %T", ExportSymbol, symbol)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("symbol %s exports no tools", ExportSymbol)
	}
	tools := make([]agent.Tool, 0, len(entries))
	for i, entry := range entries {
		tool, ok := entry.(agent.Tool)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %T, which does not implement agent.Tool", ExportSymbol, i, entry)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}
