package route

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a route catalog extension.
type catalogFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadCatalogFile registers the routes declared in a YAML file on top of c.
func LoadCatalogFile(c *Catalog, path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("read route catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse route catalog: %w", err)
	}

	if err := c.Register(file.Routes...); err != nil {
		return 0, fmt.Errorf("register route catalog %s: %w", path, err)
	}
	return len(file.Routes), nil
}
