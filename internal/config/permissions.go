// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"io/fs"
	"log/slog"
	"os"
	"runtime"
)

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by group or others, since it may hold embedding.api_key. Windows
// uses ACLs and is skipped.
func WarnInsecurePermissions(path string) bool {
	if path == "" || runtime.GOOS == "windows" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return false
	}

	const groupOrOtherRead fs.FileMode = 0o044
	if info.Mode().Perm()&groupOrOtherRead == 0 {
		return false
	}

	slog.Warn("config file is readable by other users; api keys may be exposed",
		"path", path,
		"mode", info.Mode(),
		"recommended", "0600",
	)
	return true
}
