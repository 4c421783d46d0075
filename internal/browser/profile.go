package browser

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var crashedPrefsReplacer = strings.NewReplacer(
	`"exit_type":"Crashed"`, `"exit_type":"Normal"`,
	`"exit_type": "Crashed"`, `"exit_type": "Normal"`,
	`"exited_cleanly":false`, `"exited_cleanly":true`,
	`"exited_cleanly": false`, `"exited_cleanly": true`,
)

// PrepareProfileDir creates (or reuses) the persistent profile directory and
// clears anything a previous run left behind that would block or derail this
// launch: singleton lock files from a dead process, and session-restore state
// from a crash, which would pop restore UI over the authorization page.
func PrepareProfileDir(profileDir string) error {
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return err
	}

	for _, lockName := range []string{"SingletonLock", "SingletonSocket", "SingletonCookie"} {
		if err := os.Remove(filepath.Join(profileDir, lockName)); err == nil {
			slog.Warn("removed stale lock", "file", lockName)
		}
	}

	if WasUncleanExit(profileDir) {
		slog.Warn("previous session exited uncleanly, clearing session restore data")
		ClearSessions(profileDir)
	}

	MarkCleanExit(profileDir)
	return nil
}

// MarkCleanExit patches the profile's Preferences so Chrome does not treat
// the last run as a crash.
func MarkCleanExit(profileDir string) {
	prefsPath := filepath.Join(profileDir, "Default", "Preferences")
	data, err := os.ReadFile(prefsPath)
	if err != nil {
		return
	}
	patched := crashedPrefsReplacer.Replace(string(data))
	if patched != string(data) {
		if err := os.WriteFile(prefsPath, []byte(patched), 0644); err != nil {
			slog.Error("patch prefs", "err", err)
		}
	}
}

func WasUncleanExit(profileDir string) bool {
	prefsPath := filepath.Join(profileDir, "Default", "Preferences")
	data, err := os.ReadFile(prefsPath)
	if err != nil {
		return false
	}
	prefs := string(data)
	return strings.Contains(prefs, `"exit_type":"Crashed"`) || strings.Contains(prefs, `"exit_type": "Crashed"`)
}

func ClearSessions(profileDir string) {
	sessionsDir := filepath.Join(profileDir, "Default", "Sessions")

	// Retry with backoff on Windows where file locks may persist after
	// Chrome exit.
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(100 * time.Millisecond)
		}
		err = os.RemoveAll(sessionsDir)
		if err == nil {
			return
		}
	}
	slog.Warn("failed to clear sessions dir after retries", "err", err)
}
