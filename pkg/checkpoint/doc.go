// Package checkpoint records per-unit harvest progress so runs can resume.
//
// Each source has one JSON snapshot mapping unit keys to the furthest stage
// the unit reached (fetched, transformed, uploaded or failed). Snapshots are
// written to a temporary file, synced and renamed over the previous one, so
// a reader sees either the old or the new state. Files from older releases
// that stored a bare list of finished keys are read as uploaded records.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: ~/.local/share/legmirror/checkpoints/
//   - macOS: ~/Library/Application Support/legmirror/checkpoints/
//   - Windows: %APPDATA%/legmirror/checkpoints/
package checkpoint
