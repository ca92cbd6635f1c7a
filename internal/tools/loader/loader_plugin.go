//go:build !windows

package loader

import (
	"fmt"
	"plugin"
	"strings"
)

func lookupExport(path string) (any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("module path is empty")
	}
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open module %s: %w", path, err)
	}
	symbol, err := plug.Lookup(ExportSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", ExportSymbol, err)
	}
	return symbol, nil
}
