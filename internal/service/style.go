package service

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/quakemap/internal/style"
)

// StyleService holds the layer document new widgets are mounted with. An
// override saved through Replace survives restarts in the data directory.
type StyleService struct {
	dataDir  string
	base     style.Document
	bus      *EventBus
	mu       sync.RWMutex
	doc      style.Document
	override bool
}

// NewStyleService creates a style service falling back to base.
func NewStyleService(dataDir string, base style.Document, bus *EventBus) *StyleService {
	s := &StyleService{
		dataDir: dataDir,
		base:    base,
		bus:     bus,
		doc:     base,
	}
	s.loadFromDisk()
	return s
}

// Get returns the current document and whether it is an override.
func (s *StyleService) Get() (style.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.override
}

// Replace validates and stores doc. Widgets mounted afterwards use it.
func (s *StyleService) Replace(doc style.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveToDisk(doc); err != nil {
		return err
	}
	s.doc = doc
	s.override = true
	s.bus.Publish(Event{Resource: "style", Action: "updated"})
	return nil
}

// Reset drops the override.
func (s *StyleService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataDir != "" {
		if err := os.Remove(s.configFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	s.doc = s.base
	s.override = false
	s.bus.Publish(Event{Resource: "style", Action: "updated"})
	return nil
}

// configFile returns the path to the style override file.
func (s *StyleService) configFile() string {
	return filepath.Join(s.dataDir, "style.json")
}

// loadFromDisk loads a saved override. A missing or invalid file keeps the base.
func (s *StyleService) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	doc, err := style.Load(s.configFile())
	if err != nil {
		return
	}
	s.doc = doc
	s.override = true
}

// saveToDisk persists the override.
func (s *StyleService) saveToDisk(doc style.Document) error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
