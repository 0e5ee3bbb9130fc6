package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// SourceURLPrefix is where the server exposes the sources directory.
const SourceURLPrefix = "/data/sources/"

// SourceService lists local GeoJSON files that the map can load instead of
// the remote sample datasets.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".geojson" && ext != ".json" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: "GeoJSON",
			URL:      SourceURLPrefix + entry.Name(),
		})
	}

	return files, nil
}

// ErrInvalidSourceName is returned for names that are not a plain
// .geojson or .json file name.
var ErrInvalidSourceName = errors.New("invalid source file name")

func (s *SourceService) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceName, name)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".geojson" && ext != ".json" {
		return "", fmt.Errorf("%w: %q: only .geojson or .json files are allowed", ErrInvalidSourceName, name)
	}
	return filepath.Join(s.sourcesDir, name), nil
}

// Save writes r to the sources directory under name. The content must be a
// GeoJSON feature collection.
func (s *SourceService) Save(name string, r io.Reader) (SourceFile, error) {
	dest, err := s.path(name)
	if err != nil {
		return SourceFile{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return SourceFile{}, err
	}
	if _, err := geojson.UnmarshalFeatureCollection(data); err != nil {
		return SourceFile{}, fmt.Errorf("%w: %q is not a feature collection: %v", ErrInvalidSourceName, name, err)
	}
	if err := os.MkdirAll(s.sourcesDir, 0755); err != nil {
		return SourceFile{}, err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return SourceFile{}, err
	}
	return SourceFile{
		Name:     name,
		Size:     formatSize(int64(len(data))),
		FileType: "GeoJSON",
		URL:      SourceURLPrefix + name,
	}, nil
}

// Delete removes a source file.
func (s *SourceService) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: source %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// ReadFeatures decodes a GeoJSON feature collection from path. It backs
// hit-testing in the headless engine; the browser engine fetches sources
// itself.
func ReadFeatures(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
