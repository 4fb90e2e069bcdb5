// Package checkpoint records the progress of an export job.
//
// Each handle gets one checkpoint file holding the run id, the current
// stage, the last cursor and item count of every collection, and the error
// that stopped the run if any. It is meant for inspecting interrupted jobs;
// a new run always starts from the beginning and relies on the idempotent
// journals to avoid duplicates.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/mastoscrape/checkpoints/ or ~/.local/share/mastoscrape/checkpoints/
//   - macOS: ~/Library/Application Support/mastoscrape/checkpoints/
//   - Windows: %APPDATA%/mastoscrape/checkpoints/
package checkpoint
