// Package lastfailed persists the set of test ids that failed in the most
// recent run (spec.md §6), for an upstream collector's --last-failed-style
// re-selection.
//
// Grounded on original_source/src/cache.rs's LastFailedCache and its
// read_last_failed/write_last_failed pair: a JSON document holding a set
// of test ids, read back verbatim (Testable Property 8). The Rust
// original writes with a plain fs::write, which is not atomic; this
// engine writes the same way the pack's own Go tooling does for
// crash-safety, via github.com/google/renameio/v2.
package lastfailed

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"

	"github.com/apexrun/fixrunner/rterrors"
)

// Document is the persisted last-failed record: the set of unique test
// ids that failed in the most recent run.
type Document struct {
	Failed []string `json:"failed"`
}

// Read loads the document at path. A missing file is not an error: it
// reports an empty Document, matching a collector's first-ever run.
func Read(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil
		}
		return Document{}, rterrors.Wrapf(err, "lastfailed: read %s", path)
	}
	if len(b) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, rterrors.Wrapf(err, "lastfailed: parse %s", path)
	}
	return doc, nil
}

// Write persists failed as the document at path, replacing any existing
// file atomically so a crash mid-write never leaves a truncated or
// corrupt document behind.
func Write(path string, failed []string) error {
	doc := Document{Failed: failed}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return rterrors.Wrap(err, "lastfailed: marshal")
	}
	if err := renameio.WriteFile(path, b, 0o644); err != nil {
		return rterrors.Wrapf(err, "lastfailed: write %s", path)
	}
	return nil
}
