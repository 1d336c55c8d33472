package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

const runTimestampLayout = "20060102_150405"

// RunFileName builds the history file name {YYYYMMDD_HHMMSS}_{spec}.json.
func RunFileName(run RunRecord) string {
	spec := filepath.Base(run.SpecName)
	spec = strings.TrimSuffix(spec, filepath.Ext(spec))
	return fmt.Sprintf("%s_%s.json", run.Timestamp.UTC().Format(runTimestampLayout), SafeName(spec))
}

// SaveRun writes an immutable run record and refreshes latest.json.
func (s *Store) SaveRun(run RunRecord) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run %s: %w", run.SessionID, err)
	}

	dir := filepath.Join(s.dataDir, runsDir)
	name := RunFileName(run)
	path := filepath.Join(dir, name)
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.json", strings.TrimSuffix(name, ".json"), i))
	}

	if err := writeFileAtomic(path, data); err != nil {
		return "", errdefs.Registry("write run", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, latestRunFile), data); err != nil {
		return "", errdefs.Registry("write latest run", err)
	}

	logging.Info("Registry", "Run %s saved to %s", run.SessionID, path)
	return path, nil
}

// LoadLatestRun returns the most recently saved run, or nil if there is none.
func (s *Store) LoadLatestRun() (*RunRecord, error) {
	path := filepath.Join(s.dataDir, runsDir, latestRunFile)
	if !fileExists(path) {
		return nil, nil
	}
	return readRun(path)
}

// ListRuns returns up to limit runs, newest first. Unreadable files are skipped.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	files, err := s.runFiles()
	if err != nil {
		return nil, err
	}

	var runs []RunRecord
	for _, f := range files {
		if limit > 0 && len(runs) >= limit {
			break
		}
		run, err := readRun(f)
		if err != nil {
			logging.Warn("Registry", "Skipping unreadable run %s: %v", f, err)
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// LoadRun finds a run by session id.
func (s *Store) LoadRun(sessionID string) (*RunRecord, error) {
	files, err := s.runFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		run, err := readRun(f)
		if err != nil {
			continue
		}
		if run.SessionID == sessionID {
			return run, nil
		}
	}
	return nil, fmt.Errorf("run %s not found", sessionID)
}

// runFiles lists history files newest first, excluding latest.json.
func (s *Store) runFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dataDir, runsDir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if filepath.Base(f) != latestRunFile {
			out = append(out, f)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func readRun(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Registry("read run", err)
	}
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errdefs.Registry("parse run", err)
	}
	return &run, nil
}

// SaveCapabilities writes the capability manifest.
func (s *Store) SaveCapabilities(c Capabilities) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode capabilities: %w", err)
	}
	path := filepath.Join(s.dataDir, capabilitiesDir, manifestFile)
	if err := writeFileAtomic(path, data); err != nil {
		return "", errdefs.Registry("write capabilities", err)
	}
	logging.Info("Registry", "Capabilities for %s saved to %s", c.Server, path)
	return path, nil
}

// LoadCapabilities returns the saved manifest, or nil when none exists.
func (s *Store) LoadCapabilities() (*Capabilities, error) {
	path := filepath.Join(s.dataDir, capabilitiesDir, manifestFile)
	if !fileExists(path) {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Registry("read capabilities", err)
	}
	var c Capabilities
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errdefs.Registry("parse capabilities", err)
	}
	return &c, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
