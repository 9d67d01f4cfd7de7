package store

import "path/filepath"

// SessionsDirName is the subdirectory of the run directory that holds
// per-session exports.
const SessionsDirName = "sessions"

// SessionDir returns the export directory for one session.
func SessionDir(runDir, sessionID string) string {
	return filepath.Join(runDir, SessionsDirName, sessionID)
}
