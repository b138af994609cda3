package xenv

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// 模块清单: 决定control service加载哪些内置provider
type Manifest struct {
	Modules []ModuleEntry `yaml:"modules"`
}

type ModuleEntry struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"` // config|namespace|shutdown
	Properties map[string]string `yaml:"properties"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest[%v]", path)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "unmarshal manifest")
	}
	seen := make(map[string]bool)
	for _, entry := range m.Modules {
		if entry.Name == "" || entry.Kind == "" {
			return nil, errors.Errorf("manifest module %+v missing name or kind", entry)
		}
		if seen[entry.Name] {
			return nil, errors.Errorf("manifest module[%v] is repeated", entry.Name)
		}
		seen[entry.Name] = true
	}
	return m, nil
}
