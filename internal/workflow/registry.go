package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mcptape/internal/config"
	"mcptape/pkg/logging"
)

// RegistryFile is the registry's file name under {dataDir}/workflows.
const RegistryFile = "registry.yaml"

// ErrWorkflowNotFound is returned for unknown workflow names.
var ErrWorkflowNotFound = errors.New("workflow not found")

// For testing
var timeNow = time.Now

// Entry is a registered workflow.
type Entry struct {
	Name         string     `yaml:"name"`
	Source       string     `yaml:"source"`
	Description  string     `yaml:"description,omitempty"`
	Tags         []string   `yaml:"tags,omitempty"`
	RegisteredAt time.Time  `yaml:"registeredAt"`
	Definition   Definition `yaml:"definition"`
	// Layered entries come from the workflows directory and are not persisted.
	Layered bool `yaml:"-"`
}

type registryDocument struct {
	Workflows []Entry `yaml:"workflows"`
}

// Registry holds named workflows: those registered explicitly, persisted in
// registry.yaml, and those found in the workflows directory. Registered
// entries win over directory entries of the same name.
type Registry struct {
	mu         sync.RWMutex
	path       string
	registered map[string]*Entry
	layered    map[string]*Entry
}

// NewRegistry loads the registry kept under dataDir and the workflow files in
// workflowsDir. Either may be missing.
func NewRegistry(dataDir, workflowsDir string) (*Registry, error) {
	r := &Registry{
		path:       filepath.Join(dataDir, "workflows", RegistryFile),
		registered: make(map[string]*Entry),
		layered:    make(map[string]*Entry),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	if workflowsDir != "" {
		if err := r.loadLayered(workflowsDir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read workflow registry: %w", err)
	}
	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse workflow registry %s: %w", r.path, err)
	}
	for i := range doc.Workflows {
		e := doc.Workflows[i]
		r.registered[e.Name] = &e
	}
	logging.Debug("WorkflowRegistry", "Loaded %d registered workflows from %s", len(r.registered), r.path)
	return nil
}

func (r *Registry) loadLayered(dir string) error {
	loaded, err := config.LoadAndParseYAML(dir, func(def Definition) error {
		return def.Validate()
	})
	if err != nil {
		return fmt.Errorf("failed to load workflow definitions: %w", err)
	}
	for _, l := range loaded {
		r.layered[l.Value.Name] = newEntry(l.Value, l.Path, true)
	}
	logging.Debug("WorkflowRegistry", "Loaded %d workflows from %s", len(loaded), dir)
	return nil
}

func newEntry(def Definition, source string, layered bool) *Entry {
	return &Entry{
		Name:         def.Name,
		Source:       source,
		Description:  def.Description,
		Tags:         def.Tags,
		RegisteredAt: timeNow().UTC(),
		Definition:   def,
		Layered:      layered,
	}
}

// Register adds or replaces a workflow and persists the registry.
func (r *Registry) Register(def Definition, source string) (*Entry, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.registered[def.Name]
	entry := newEntry(def, source, false)
	r.registered[def.Name] = entry
	if err := r.save(); err != nil {
		if existed {
			r.registered[def.Name] = prev
		} else {
			delete(r.registered, def.Name)
		}
		return nil, err
	}
	logging.Info("WorkflowRegistry", "Registered workflow %s from %s", def.Name, source)
	return entry, nil
}

// RegisterFile registers the workflow in path, optionally under another name.
func (r *Registry) RegisterFile(path, nameOverride string) (*Entry, error) {
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	if nameOverride != "" {
		def.Name = nameOverride
	}
	return r.Register(def, path)
}

// RegisterDir registers every valid workflow file in dir and returns their
// names. Invalid files are skipped with a warning.
func (r *Registry) RegisterDir(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}
	loaded, err := config.LoadAndParseYAML(dir, func(def Definition) error {
		return def.Validate()
	})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range loaded {
		if _, err := r.Register(l.Value, l.Path); err != nil {
			return names, err
		}
		names = append(names, l.Value.Name)
	}
	return names, nil
}

// Get returns a workflow by name.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.registered[name]; ok {
		copy := *e
		return &copy, nil
	}
	if e, ok := r.layered[name]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
}

// Exists reports whether a workflow is known.
func (r *Registry) Exists(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns every workflow sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]*Entry, len(r.registered)+len(r.layered))
	for name, e := range r.layered {
		merged[name] = e
	}
	for name, e := range r.registered {
		merged[name] = e
	}

	out := make([]Entry, 0, len(merged))
	for _, e := range merged {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByTag returns the workflows carrying tag.
func (r *Registry) ListByTag(tag string) []Entry {
	var out []Entry
	for _, e := range r.List() {
		if slices.Contains(e.Tags, tag) {
			out = append(out, e)
		}
	}
	return out
}

// Search matches query case-insensitively against names, descriptions and
// tags.
func (r *Registry) Search(query string) []Entry {
	q := strings.ToLower(query)
	var out []Entry
	for _, e := range r.List() {
		if strings.Contains(strings.ToLower(e.Name), q) ||
			strings.Contains(strings.ToLower(e.Description), q) ||
			slices.ContainsFunc(e.Tags, func(t string) bool { return strings.Contains(strings.ToLower(t), q) }) {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes a registered workflow. Workflows that only exist as files in
// the workflows directory cannot be removed through the registry.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.registered[name]
	if !ok {
		if l, ok := r.layered[name]; ok {
			return fmt.Errorf("workflow %s is defined in %s; delete the file instead", name, l.Source)
		}
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	delete(r.registered, name)
	if err := r.save(); err != nil {
		r.registered[name] = e
		return err
	}
	logging.Info("WorkflowRegistry", "Removed workflow %s", name)
	return nil
}

// save writes the registered entries atomically. Callers hold r.mu.
func (r *Registry) save() error {
	doc := registryDocument{Workflows: make([]Entry, 0, len(r.registered))}
	for _, e := range r.registered {
		doc.Workflows = append(doc.Workflows, *e)
	}
	sort.Slice(doc.Workflows, func(i, j int) bool { return doc.Workflows[i].Name < doc.Workflows[j].Name })

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode workflow registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create workflow registry directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace workflow registry: %w", err)
	}
	return nil
}
