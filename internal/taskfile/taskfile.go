// Package taskfile reads the task source: a goal, optional ordering
// narrative and either a flat task list or named phases. Files are YAML;
// JSON documents parse too since JSON is valid YAML.
package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// File is a parsed task file.
type File struct {
	// Path is where the file was loaded from, if anywhere.
	Path        string  `yaml:"-" json:"-"`
	Goal        string  `yaml:"goal" json:"goal"`
	Narrative   string  `yaml:"narrative,omitempty" json:"narrative,omitempty"`
	Strategy    string  `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	MaxParallel int     `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
	Tasks       []Item  `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Phases      []Phase `yaml:"phases,omitempty" json:"phases,omitempty"`
}

// Item is one task. In a file it is either a bare string or a mapping with
// a description and an optional priority.
type Item struct {
	Description string `yaml:"description" json:"description"`
	// Priority overrides the inferred list position when set.
	Priority *int `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// UnmarshalYAML accepts a scalar or a mapping.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		it.Description = node.Value
		return nil
	}
	type plain Item
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*it = Item(p)
	return nil
}

// Phase is a named group of tasks in the hierarchical form.
type Phase struct {
	Name      string   `yaml:"name" json:"name"`
	Narrative string   `yaml:"narrative,omitempty" json:"narrative,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Tasks     []Item   `yaml:"tasks" json:"tasks"`
}

// Error is a problem with one field of a task file.
type Error struct {
	File  string
	Field string
	Msg   string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("taskfile")
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	f, err := parse(data, path)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse decodes and validates a task file held in memory.
func Parse(data []byte) (*File, error) {
	return parse(data, "")
}

func parse(data []byte, path string) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{File: path, Msg: "empty document"}
		}
		return nil, &Error{File: path, Msg: err.Error()}
	}
	if err := f.validate(path); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate(path string) error {
	fail := func(field, format string, args ...any) error {
		return &Error{File: path, Field: field, Msg: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(f.Goal) == "" {
		return fail("goal", "must not be empty")
	}
	if f.Strategy != "" {
		if _, err := models.ParseStrategy(f.Strategy); err != nil {
			return fail("strategy", "%v", err)
		}
	}
	if f.MaxParallel < 0 {
		return fail("max_parallel", "must not be negative")
	}

	switch {
	case len(f.Tasks) > 0 && len(f.Phases) > 0:
		return fail("", "tasks and phases are mutually exclusive")
	case len(f.Tasks) == 0 && len(f.Phases) == 0:
		return fail("tasks", "no tasks given")
	case len(f.Phases) > 0:
		if s, ok := f.ParsedStrategy(); ok && s != models.StrategyHierarchical {
			return fail("strategy", "phases require the hierarchical strategy, got %s", s)
		}
	}

	if err := validateItems(f.Tasks, "tasks", fail); err != nil {
		return err
	}

	seen := make(map[string]int, len(f.Phases))
	for i, ph := range f.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		name := strings.TrimSpace(ph.Name)
		if name == "" {
			return fail(field+".name", "must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fail(field+".name", "duplicate phase %q", name)
		}
		for j, dep := range ph.DependsOn {
			if _, ok := seen[strings.TrimSpace(dep)]; !ok {
				return fail(fmt.Sprintf("%s.depends_on[%d]", field, j), "%q is not an earlier phase", dep)
			}
		}
		if len(ph.Tasks) == 0 {
			return fail(field+".tasks", "no tasks given")
		}
		if err := validateItems(ph.Tasks, field+".tasks", fail); err != nil {
			return err
		}
		seen[name] = i
	}
	return nil
}

func validateItems(items []Item, field string, fail func(string, string, ...any) error) error {
	for i, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			return fail(fmt.Sprintf("%s[%d].description", field, i), "must not be empty")
		}
		if it.Priority != nil && *it.Priority < 0 {
			return fail(fmt.Sprintf("%s[%d].priority", field, i), "must not be negative")
		}
	}
	return nil
}

// Hierarchical reports whether the file uses phases.
func (f *File) Hierarchical() bool {
	return len(f.Phases) > 0
}

// ParsedStrategy returns the strategy named in the file, if any. A phased
// file with no strategy is hierarchical.
func (f *File) ParsedStrategy() (models.Strategy, bool) {
	if f.Strategy == "" {
		if f.Hierarchical() {
			return models.StrategyHierarchical, true
		}
		return "", false
	}
	s, err := models.ParseStrategy(f.Strategy)
	if err != nil {
		return "", false
	}
	return s, true
}

// Descriptions lists the flat tasks in order.
func Descriptions(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.TrimSpace(it.Description)
	}
	return out
}

// Priorities maps item index to an explicit priority.
func Priorities(items []Item) map[int]int {
	out := make(map[int]int)
	for i, it := range items {
		if it.Priority != nil {
			out[i] = *it.Priority
		}
	}
	return out
}

// PhaseDependencies resolves the depends_on names of phase i to indices.
func (f *File) PhaseDependencies(i int) []int {
	index := make(map[string]int, len(f.Phases))
	for k, ph := range f.Phases {
		index[strings.TrimSpace(ph.Name)] = k
	}
	var out []int
	for _, dep := range f.Phases[i].DependsOn {
		if k, ok := index[strings.TrimSpace(dep)]; ok && k < i {
			out = append(out, k)
		}
	}
	return out
}

// Marshal encodes f as YAML.
func Marshal(f *File) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode task file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode task file: %w", err)
	}
	return buf.Bytes(), nil
}
