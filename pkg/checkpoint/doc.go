// Package checkpoint saves ladder crawl progress so a restarted worker
// resumes the cycle where it stopped instead of re-reading every page.
//
// One JSON file per shard holds the last completed (tier, division, page).
// Files live in ladder.checkpoint_dir, or in the platform data directory:
//   - Linux: ~/.local/share/ladderharvest/checkpoints/
//   - macOS: ~/Library/Application Support/ladderharvest/checkpoints/
//   - Windows: %APPDATA%/ladderharvest/checkpoints/
//
// Writes go to a temporary file that is synced and renamed over the old one.
package checkpoint
