//go:build windows

package loader

import "fmt"

func lookupExport(path string) (any, error) {
	return nil, fmt.Errorf("tool modules are not supported on windows")
}
