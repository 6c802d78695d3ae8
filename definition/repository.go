package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// NewRepository creates an empty definition repository. cachePath is the
// directory for cached remote definitions; empty disables the cache.
func NewRepository(cachePath string, log zerolog.Logger) *Repository {
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0755); err != nil {
			log.Error().Err(err).Str("path", cachePath).Msg("Failed to create definition cache directory")
		}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	retryClient.Logger = nil

	return &Repository{
		definitions: make(map[string]*Definition),
		cachePath:   cachePath,
		client:      retryClient.StandardClient(),
		log:         log,
	}
}

// LoadFile loads definitions from a file holding either a JSON array of
// definitions or a single definition object.
func (repo *Repository) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	count, err := repo.loadData(data)
	if err != nil {
		return fmt.Errorf("failed to load definitions from %s: %w", path, err)
	}

	repo.log.Info().
		Str("file", path).
		Int("count", count).
		Msg("Loaded filter set definitions")
	return nil
}

// LoadDir loads every .json file in a directory. Files that fail to parse
// are logged and skipped.
func (repo *Repository) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := repo.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			repo.log.Error().
				Err(err).
				Str("file", entry.Name()).
				Msg("Skipping definition file")
		}
	}
	return nil
}

// LoadURL fetches definitions from a remote endpoint. On success the
// payload is cached on disk; on failure a previously cached payload is
// used instead.
func (repo *Repository) LoadURL(url string) error {
	data, err := repo.fetch(url)
	if err != nil {
		cached, cacheErr := repo.loadFromCache(url)
		if cacheErr != nil {
			return fmt.Errorf("failed to fetch definitions: %w", err)
		}
		repo.log.Warn().
			Err(err).
			Str("url", url).
			Msg("Fetch failed, using cached definitions")
		data = cached
	} else {
		repo.saveToCache(url, data)
	}

	count, err := repo.loadData(data)
	if err != nil {
		return fmt.Errorf("failed to load definitions from %s: %w", url, err)
	}

	repo.log.Info().
		Str("url", url).
		Int("count", count).
		Msg("Loaded filter set definitions")
	return nil
}

// loadData parses a payload as a definition array first, then as a single
// definition.
func (repo *Repository) loadData(data []byte) (int, error) {
	var definitions []Definition
	if err := json.Unmarshal(data, &definitions); err == nil {
		count := 0
		for i := range definitions {
			if err := repo.add(&definitions[i]); err != nil {
				repo.log.Warn().Err(err).Msg("Skipping invalid definition")
				continue
			}
			count++
		}
		return count, nil
	}

	var single Definition
	if err := json.Unmarshal(data, &single); err != nil {
		return 0, fmt.Errorf("payload is neither a definition array nor a definition: %w", err)
	}
	if err := repo.add(&single); err != nil {
		return 0, err
	}
	return 1, nil
}

func (repo *Repository) add(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("definition without a name")
	}
	if def.Model == "" {
		return fmt.Errorf("definition %s without a model", def.Name)
	}

	repo.mu.Lock()
	repo.definitions[def.Name] = def
	repo.mu.Unlock()

	repo.log.Debug().
		Str("definition", def.Name).
		Str("model", def.Model).
		Msg("Registered filter set definition")
	return nil
}

// Get retrieves a definition by name.
func (repo *Repository) Get(name string) (*Definition, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	def, exists := repo.definitions[name]
	if !exists {
		return nil, fmt.Errorf("definition not found: %s", name)
	}
	return def, nil
}

// All returns the loaded definitions sorted by name.
func (repo *Repository) All() []*Definition {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	names := maps.Keys(repo.definitions)
	slices.Sort(names)

	result := make([]*Definition, 0, len(names))
	for _, name := range names {
		result = append(result, repo.definitions[name])
	}
	return result
}

func (repo *Repository) Names() []string {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	names := maps.Keys(repo.definitions)
	slices.Sort(names)
	return names
}

func (repo *Repository) fetch(url string) ([]byte, error) {
	resp, err := repo.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// safeFileName turns a URL into a unique, filesystem-safe cache file name.
func safeFileName(url string) string {
	hasher := sha256.New()
	hasher.Write([]byte(url))
	hash := hex.EncodeToString(hasher.Sum(nil))[:12]

	name := strings.TrimPrefix(url, "http://")
	name = strings.TrimPrefix(name, "https://")
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		".", "_",
	)
	name = replacer.Replace(name)
	if len(name) > 50 {
		name = name[:50]
	}

	return fmt.Sprintf("%s-%s.json", name, hash)
}

func (repo *Repository) saveToCache(url string, data []byte) {
	if repo.cachePath == "" {
		return
	}
	path := filepath.Join(repo.cachePath, safeFileName(url))
	if err := os.WriteFile(path, data, 0644); err != nil {
		repo.log.Error().
			Err(err).
			Str("url", url).
			Msg("Failed to cache definitions")
	}
}

func (repo *Repository) loadFromCache(url string) ([]byte, error) {
	if repo.cachePath == "" {
		return nil, fmt.Errorf("definition cache disabled")
	}
	return os.ReadFile(filepath.Join(repo.cachePath, safeFileName(url)))
}