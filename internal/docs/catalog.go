package docs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Entry describes one evaluation task: which document it translates and
// the display metadata passed through to the submission record.
type Entry struct {
	ID             string            `yaml:"id"`
	DocumentKey    string            `yaml:"document_key"`
	SeasonLabel    string            `yaml:"season_label"`
	EpisodeLabel   string            `yaml:"episode_label"`
	SourceLanguage string            `yaml:"source_language"`
	TargetLanguage string            `yaml:"target_language"`
	Metadata       map[string]string `yaml:"metadata"`
}

// Catalog is the set of tasks assigned to this deployment, loaded from a
// YAML file.
type Catalog struct {
	entries map[string]*Entry
}

type catalogFile struct {
	Tasks []*Entry `yaml:"tasks"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task catalog: %w", err)
	}
	return LoadCatalogFromBytes(data)
}

func LoadCatalogFromBytes(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse task catalog: %w", err)
	}
	entries := make(map[string]*Entry, len(file.Tasks))
	for _, e := range file.Tasks {
		if e.ID == "" {
			return nil, fmt.Errorf("task catalog entry without id")
		}
		entries[e.ID] = e
	}
	return &Catalog{entries: entries}, nil
}

func (c *Catalog) Get(taskID string) (*Entry, error) {
	e, ok := c.entries[taskID]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return e, nil
}

func (c *Catalog) Len() int {
	return len(c.entries)
}
