package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// LegacyFileName is the single-file mock store used before the categorised layout.
const LegacyFileName = "mocks.json"

// ImportReport summarises a legacy import.
type ImportReport struct {
	Imported  int
	Skipped   []SkippedEntry
	RenamedTo string
}

// SkippedEntry is a legacy entry that could not be imported.
type SkippedEntry struct {
	Key    string
	Reason string
}

type legacyKey struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ImportLegacy migrates a legacy mocks.json, whose keys are the JSON string
// {"tool": ..., "args": {...}} and whose values are responses, into tool mocks.
// Bad entries are skipped and reported; the file is renamed to mocks.json.old.
func (s *Store) ImportLegacy(path string) (*ImportReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy mocks %s: %w", path, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errdefs.Registry("parse legacy mocks", err)
	}

	// Keys that canonicalise to the same mock overwrite each other in key order.
	rawKeys := make([]string, 0, len(entries))
	for rawKey := range entries {
		rawKeys = append(rawKeys, rawKey)
	}
	sort.Strings(rawKeys)

	report := &ImportReport{}
	for _, rawKey := range rawKeys {
		rawResp := entries[rawKey]
		var key legacyKey
		if err := json.Unmarshal([]byte(rawKey), &key); err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Key: rawKey, Reason: err.Error()})
			continue
		}
		if key.Tool == "" {
			key.Tool = "unknown"
		}

		var response any
		if err := json.Unmarshal(rawResp, &response); err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Key: rawKey, Reason: err.Error()})
			continue
		}

		if _, err := s.SaveMock(CategoryTools, key.Tool, key.Args, response); err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Key: rawKey, Reason: err.Error()})
			continue
		}
		report.Imported++
	}

	for _, sk := range report.Skipped {
		logging.Warn("Registry", "Skipped legacy mock entry %.50s: %s", sk.Key, sk.Reason)
	}

	renamed := path + ".old"
	if err := os.Rename(path, renamed); err != nil {
		return report, fmt.Errorf("imported %d mocks but failed to rename %s: %w", report.Imported, path, err)
	}
	report.RenamedTo = renamed

	logging.Info("Registry", "Migrated %d legacy mocks, skipped %d; old file renamed to %s", report.Imported, len(report.Skipped), renamed)
	return report, nil
}
