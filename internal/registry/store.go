package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

const (
	mocksDir        = "mocks"
	runsDir         = "runs"
	capabilitiesDir = "capabilities"
	indexFileName   = "index.json"
	lockFileName    = ".lock"
	latestRunFile   = "latest.json"
	manifestFile    = "manifest.json"
)

// ErrMockNotFound is returned by LoadMock when no recording matches the key.
var ErrMockNotFound = errors.New("no recorded mock for this call")

// For testing
var timeNow = time.Now

// Store is the flat-file, content-addressed registry of mocks, runs and
// capability manifests rooted at a data directory.
type Store struct {
	mu      sync.Mutex
	dataDir string
	index   map[string]string
	lock    *fileLock
}

// Open prepares the directory layout under dataDir and loads the mock index.
// A corrupt index is logged and treated as empty.
func Open(dataDir string) (*Store, error) {
	dirs := []string{
		filepath.Join(dataDir, runsDir),
		filepath.Join(dataDir, capabilitiesDir),
	}
	for _, c := range Categories {
		dirs = append(dirs, filepath.Join(dataDir, mocksDir, string(c)))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory %s: %w", d, err)
		}
	}

	s := &Store{
		dataDir: dataDir,
		lock:    newFileLock(filepath.Join(dataDir, mocksDir, lockFileName)),
	}

	index, err := s.readIndex()
	if err != nil {
		logging.Error("Registry", err, "Ignoring unreadable mock index")
		index = make(map[string]string)
	}
	s.index = index

	logging.Debug("Registry", "Opened registry at %s with %d indexed mocks", dataDir, len(index))
	return s, nil
}

// DataDir returns the root directory of the store.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dataDir, mocksDir, indexFileName)
}

func (s *Store) readIndex() (map[string]string, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, errdefs.Registry("read mock index", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errdefs.Registry("parse mock index", err)
	}
	return index, nil
}

func (s *Store) writeIndex(index map[string]string) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath(), data)
}

// updateIndex performs a locked read-modify-write of the whole index file.
// The on-disk index is re-read under the lock so concurrent writers from other
// processes are not lost.
func (s *Store) updateIndex(mutate func(index map[string]string)) error {
	unlock, err := s.lock.acquire()
	if err != nil {
		return errdefs.Registry("lock mock index", err)
	}
	defer unlock()

	index, err := s.readIndex()
	if err != nil {
		logging.Warn("Registry", "Rebuilding unreadable mock index: %v", err)
		index = make(map[string]string)
	}
	mutate(index)
	if err := s.writeIndex(index); err != nil {
		return errdefs.Registry("write mock index", err)
	}
	s.index = index
	return nil
}

// SaveMock persists a recorded response, replacing any earlier recording with
// the same key.
func (s *Store) SaveMock(category Category, name string, args map[string]any, response any) (string, error) {
	key, err := MockKey(category, name, args)
	if err != nil {
		return "", err
	}
	stem, err := MockFileStem(name, args)
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	rel := filepath.ToSlash(filepath.Join(mocksDir, string(category), stem+".json"))
	record := MockRecord{
		Category:   category,
		Name:       name,
		Arguments:  args,
		Response:   response,
		RecordedAt: timeNow().UTC(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode mock %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(filepath.Join(s.dataDir, filepath.FromSlash(rel)), data); err != nil {
		return "", errdefs.Registry("write mock", err)
	}
	if err := s.updateIndex(func(index map[string]string) { index[key] = rel }); err != nil {
		return "", err
	}

	logging.Debug("Registry", "Saved mock %s to %s", key, rel)
	return rel, nil
}

// LoadMock returns the recorded response for an exact key match. A miss is
// ErrMockNotFound; an unreadable record is logged and reported as a miss.
func (s *Store) LoadMock(category Category, name string, args map[string]any) (any, error) {
	record, err := s.loadRecord(category, name, args)
	if err != nil {
		return nil, err
	}
	return record.Response, nil
}

func (s *Store) loadRecord(category Category, name string, args map[string]any) (*MockRecord, error) {
	key, err := MockKey(category, name, args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rel, ok := s.index[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", category, name, ErrMockNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, filepath.FromSlash(rel)))
	if err != nil {
		logging.Error("Registry", errdefs.Registry("read mock", err), "Treating %s as a miss", key)
		return nil, fmt.Errorf("%s %s: %w", category, name, ErrMockNotFound)
	}
	var record MockRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logging.Error("Registry", errdefs.Registry("parse mock", err), "Treating %s as a miss", key)
		return nil, fmt.Errorf("%s %s: %w", category, name, ErrMockNotFound)
	}
	if stored, err := MockKey(record.Category, record.Name, record.Arguments); err != nil || stored != key {
		logging.Warn("Registry", "Mock file %s holds %s, not %s; treating as a miss", rel, stored, key)
		return nil, fmt.Errorf("%s %s: %w", category, name, ErrMockNotFound)
	}
	return &record, nil
}

// HasMock reports whether a recording is indexed for the key.
func (s *Store) HasMock(category Category, name string, args map[string]any) bool {
	key, err := MockKey(category, name, args)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// ListMocks returns recorded mocks, optionally restricted to one category.
// Unreadable files are skipped.
func (s *Store) ListMocks(category Category) ([]MockRecord, error) {
	categories := Categories
	if category != "" {
		categories = []Category{category}
	}

	var mocks []MockRecord
	for _, c := range categories {
		files, err := filepath.Glob(filepath.Join(s.dataDir, mocksDir, string(c), "*.json"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				logging.Warn("Registry", "Skipping unreadable mock %s: %v", f, err)
				continue
			}
			var m MockRecord
			if err := json.Unmarshal(data, &m); err != nil {
				logging.Warn("Registry", "Skipping corrupt mock %s: %v", f, err)
				continue
			}
			mocks = append(mocks, m)
		}
	}

	sort.SliceStable(mocks, func(i, j int) bool {
		if mocks[i].Category != mocks[j].Category {
			return mocks[i].Category < mocks[j].Category
		}
		return mocks[i].Name < mocks[j].Name
	})
	return mocks, nil
}

// ClearMocks removes recorded mocks of one category, or all of them when
// category is empty, and returns how many files were removed.
func (s *Store) ClearMocks(category Category) (int, error) {
	categories := Categories
	if category != "" {
		categories = []Category{category}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, c := range categories {
		files, err := filepath.Glob(filepath.Join(s.dataDir, mocksDir, string(c), "*.json"))
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return removed, errdefs.Registry("remove mock", err)
			}
			removed++
		}
	}

	err := s.updateIndex(func(index map[string]string) {
		for key := range index {
			for _, c := range categories {
				if strings.HasPrefix(key, string(c)+":") {
					delete(index, key)
				}
			}
		}
	})
	if err != nil {
		return removed, err
	}

	logging.Info("Registry", "Cleared %d mocks", removed)
	return removed, nil
}

// Stats reports mock and run counts.
func (s *Store) Stats() (Stats, error) {
	abs, err := filepath.Abs(s.dataDir)
	if err != nil {
		abs = s.dataDir
	}

	s.mu.Lock()
	total := len(s.index)
	s.mu.Unlock()

	stats := Stats{
		TotalMocks: total,
		ByCategory: make(map[Category]int),
		DataDir:    abs,
	}
	for _, c := range Categories {
		files, err := filepath.Glob(filepath.Join(s.dataDir, mocksDir, string(c), "*.json"))
		if err != nil {
			return stats, err
		}
		stats.ByCategory[c] = len(files)
	}

	runs, err := s.runFiles()
	if err != nil {
		return stats, err
	}
	stats.TotalRuns = len(runs)
	return stats, nil
}

// writeFileAtomic writes data to a sibling temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
