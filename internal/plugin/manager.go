package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// manifestFile is the name of the manifest inside each plugin directory.
const manifestFile = "plugin.json"

// Manager discovers plugins and looks them up by name or action.
type Manager struct {
	pluginDir string
	goos      string

	mu       sync.RWMutex
	byName   map[string]*Plugin
	byAction map[string]*Plugin
	sorted   []*Plugin
}

// NewManager creates a Manager over pluginDir for the running platform.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		goos:      runtime.GOOS,
	}
}

// Discover replaces the known plugins with those found in the plugin
// directory. A missing directory yields no plugins. Directories without a
// readable manifest and plugins for other platforms are skipped.
func (m *Manager) Discover() error {
	manifests, err := filepath.Glob(filepath.Join(m.pluginDir, "*", manifestFile))
	if err != nil {
		return fmt.Errorf("scan %s: %w", m.pluginDir, err)
	}

	var found []*Plugin
	for _, path := range manifests {
		p, err := load(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("plugin: skipping %s: %v", filepath.Dir(path), err)
			}
			continue
		}
		if !p.Manifest.RunsOn(m.goos) {
			continue
		}
		found = append(found, p)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].Manifest.Name < found[j].Manifest.Name
	})

	byName := make(map[string]*Plugin, len(found))
	byAction := make(map[string]*Plugin)
	for _, p := range found {
		byName[p.Manifest.Name] = p
		for _, a := range p.Manifest.Actions {
			if _, taken := byAction[a]; !taken {
				byAction[a] = p
			}
		}
	}

	m.mu.Lock()
	m.byName, m.byAction, m.sorted = byName, byAction, found
	m.mu.Unlock()
	return nil
}

// load reads the manifest at path. A manifest without a name takes the
// name of its directory.
func load(path string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}

	dir := filepath.Dir(path)
	if manifest.Name == "" {
		manifest.Name = filepath.Base(dir)
	}
	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.byName[name]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

// ForAction returns the first plugin, by name, that handles action.
func (m *Manager) ForAction(action string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.byAction[action]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Plugin(nil), m.sorted...)
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
