package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gyaneshwarpardhi/never2/internal/property"
)

// PropertiesPath is the SMT-LIB file stored next to a network file.
func PropertiesPath(networkPath string) string {
	return strings.TrimSuffix(networkPath, filepath.Ext(networkPath)) + ".smt2"
}

// SaveProperties writes a precondition and a postcondition to path. Either
// may be nil.
func SaveProperties(path string, pre, post *property.Container) error {
	return writeFile(path, func(fh *os.File) error {
		return property.WriteSMT(fh, pre, post, "Real")
	})
}

// LoadProperties reads an SMT-LIB or VNN-LIB property file.
func LoadProperties(path string) (map[string]*property.Container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".smt", ".smt2", ".vnnlib":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	props, err := property.ReadSMT(fh)
	if err != nil {
		return nil, fmt.Errorf("read properties %s: %w", path, err)
	}
	return props, nil
}
