package statemachine

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// ConfigLoader is an interface for loading schema documents by name.
// Applications can implement this to provide embedded or custom schema loading.
type ConfigLoader interface {
	LoadByName(name string) ([]byte, error)
	ListAvailable() []string
}

var (
	// defaultConfigLoader is the global config loader used by LoadConfig.
	defaultConfigLoader ConfigLoader //nolint:gochecknoglobals
	configLoaderMu      sync.RWMutex //nolint:gochecknoglobals
)

// SetConfigLoader sets the default config loader for name-based loading.
func SetConfigLoader(loader ConfigLoader) {
	configLoaderMu.Lock()
	defer configLoaderMu.Unlock()

	defaultConfigLoader = loader
}

func getConfigLoader() ConfigLoader {
	configLoaderMu.RLock()
	defer configLoaderMu.RUnlock()

	return defaultConfigLoader
}

// schemaExtensions are the suffixes that mark an argument to LoadConfig as a path.
var schemaExtensions = []string{ //nolint:gochecknoglobals
	".yaml", ".yml", ".json",
	".gz", ".zst", ".br", ".lz4",
}

func looksLikePath(pathOrName string) bool {
	if strings.ContainsAny(pathOrName, `/\`) {
		return true
	}

	lower := strings.ToLower(pathOrName)
	for _, ext := range schemaExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// LoadConfig compiles a schema by path or name.
// Supports two modes:
//   - Path mode: anything containing a path separator or ending in a schema
//     extension (.yaml, .json, .gz, .br, ...) is read from the filesystem.
//     Example: LoadConfig("testdata/matter.yaml"), LoadConfig("door.json.br")
//   - Name mode: a bare name is resolved through the registered ConfigLoader.
//     Example: LoadConfig("door")
//
// The file name is passed on as the source name so compression can be inferred
// from the extension where the content carries no magic bytes.
func LoadConfig(pathOrName string, opts ...CompileOption) (*Schema, error) {
	if looksLikePath(pathOrName) {
		data, err := os.ReadFile(pathOrName) //nolint:gosec // Intentional path-based loading
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %q: %w", pathOrName, err)
		}

		return LoadConfigFromBytes(data, append([]CompileOption{WithSourceName(pathOrName)}, opts...)...)
	}

	loader := getConfigLoader()
	if loader == nil {
		return nil, ErrNoConfigLoader
	}

	data, err := loader.LoadByName(pathOrName)
	if err != nil {
		available := loader.ListAvailable()

		return nil, fmt.Errorf("failed to load schema %q (available: %v): %w", pathOrName, available, err)
	}

	return LoadConfigFromBytes(data, append([]CompileOption{WithSourceName(pathOrName)}, opts...)...)
}

// LoadConfigFromBytes compiles a schema from raw document bytes.
func LoadConfigFromBytes(data []byte, opts ...CompileOption) (*Schema, error) {
	return Compile(data, opts...)
}

// LoadConfigFromFS compiles a schema from a filesystem such as an embed.FS.
func LoadConfigFromFS(fsys fs.FS, name string, opts ...CompileOption) (*Schema, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema from FS: %w", err)
	}

	return LoadConfigFromBytes(data, append([]CompileOption{WithSourceName(path.Base(name))}, opts...)...)
}

// FSConfigLoader serves schemas from a directory of a filesystem, looking a
// name up under each of the known schema extensions.
type FSConfigLoader struct {
	FS  fs.FS
	Dir string
}

var _ ConfigLoader = (*FSConfigLoader)(nil)

func (l *FSConfigLoader) LoadByName(name string) ([]byte, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		data, err := fs.ReadFile(l.FS, path.Join(l.dir(), name+ext))
		if err == nil {
			return data, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, name)
}

func (l *FSConfigLoader) ListAvailable() []string {
	entries, err := fs.ReadDir(l.FS, l.dir())
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		ext := path.Ext(e.Name())
		switch ext {
		case ".yaml", ".yml", ".json":
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}

	return names
}

func (l *FSConfigLoader) dir() string {
	if l.Dir == "" {
		return "."
	}

	return l.Dir
}
