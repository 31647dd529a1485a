package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tools.yaml
var defaultCatalog []byte

type Difficulty string

const (
	Beginner     Difficulty = "Beginner"
	Intermediate Difficulty = "Intermediate"
	Advanced     Difficulty = "Advanced"
)

func (d Difficulty) Valid() bool {
	switch d {
	case Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

type Step struct {
	ID            string     `yaml:"id" json:"id"`
	Title         string     `yaml:"title" json:"title"`
	Description   string     `yaml:"description" json:"description"`
	EstimatedTime string     `yaml:"estimated_time" json:"estimated_time"`
	Difficulty    Difficulty `yaml:"difficulty" json:"difficulty"`
}

type Section struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Steps []Step `yaml:"steps" json:"steps"`
}

type ToolPath struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Category string    `yaml:"category" json:"category"`
	Sections []Section `yaml:"sections" json:"sections"`
}

// TotalSteps sums the steps of every section.
func (t *ToolPath) TotalSteps() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Steps)
	}
	return n
}

func (t *ToolPath) HasStep(stepID string) bool {
	for _, s := range t.Sections {
		for _, st := range s.Steps {
			if st.ID == stepID {
				return true
			}
		}
	}
	return false
}

// StepIDs returns the tool's step ids in catalog order.
func (t *ToolPath) StepIDs() []string {
	ids := make([]string, 0, t.TotalSteps())
	for _, s := range t.Sections {
		for _, st := range s.Steps {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

// Catalog is the read-only set of learning paths. It is never persisted.
type Catalog struct {
	Tools []ToolPath `yaml:"tools" json:"tools"`

	byID map[string]*ToolPath
}

func Load(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

func (c *Catalog) index() {
	c.byID = make(map[string]*ToolPath, len(c.Tools))
	for i := range c.Tools {
		c.byID[c.Tools[i].ID] = &c.Tools[i]
	}
}

func (c *Catalog) Validate() error {
	var errs []error
	if len(c.Tools) == 0 {
		errs = append(errs, errors.New("catalog has no tools"))
	}
	seenTools := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("tool %q: missing id", t.Name))
			continue
		}
		if seenTools[t.ID] {
			errs = append(errs, fmt.Errorf("tool %s: duplicate id", t.ID))
		}
		seenTools[t.ID] = true

		if len(t.Sections) == 0 {
			errs = append(errs, fmt.Errorf("tool %s: no sections", t.ID))
		}
		seenSteps := make(map[string]bool)
		for _, s := range t.Sections {
			if len(s.Steps) == 0 {
				errs = append(errs, fmt.Errorf("tool %s: section %q has no steps", t.ID, s.Title))
			}
			for _, st := range s.Steps {
				if st.ID == "" {
					errs = append(errs, fmt.Errorf("tool %s: step %q missing id", t.ID, st.Title))
					continue
				}
				if seenSteps[st.ID] {
					errs = append(errs, fmt.Errorf("tool %s: duplicate step id %s", t.ID, st.ID))
				}
				seenSteps[st.ID] = true
				if !st.Difficulty.Valid() {
					errs = append(errs, fmt.Errorf("tool %s: step %s has unknown difficulty %q", t.ID, st.ID, st.Difficulty))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) Tool(id string) (*ToolPath, bool) {
	if c.byID == nil {
		c.index()
	}
	t, ok := c.byID[id]
	return t, ok
}

// TotalSteps returns 0 for an unknown tool.
func (c *Catalog) TotalSteps(toolID string) int {
	t, ok := c.Tool(toolID)
	if !ok {
		return 0
	}
	return t.TotalSteps()
}

func (c *Catalog) HasStep(toolID, stepID string) bool {
	t, ok := c.Tool(toolID)
	return ok && t.HasStep(stepID)
}

// ToolIDs returns tool ids in catalog order.
func (c *Catalog) ToolIDs() []string {
	ids := make([]string, 0, len(c.Tools))
	for _, t := range c.Tools {
		ids = append(ids, t.ID)
	}
	return ids
}
