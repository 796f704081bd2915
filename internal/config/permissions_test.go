// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sigil-dev/fewshot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on windows")
	}

	tests := []struct {
		name     string
		perm     os.FileMode
		wantWarn bool
	}{
		{"owner only 0600", 0o600, false},
		{"read only 0400", 0o400, false},
		{"group readable 0640", 0o640, true},
		{"other readable 0604", 0o604, true},
		{"world readable 0644", 0o644, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fewshot.yaml")
			require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))
			require.NoError(t, os.Chmod(path, tt.perm))

			assert.Equal(t, tt.wantWarn, config.WarnInsecurePermissions(path))
		})
	}
}

func TestWarnInsecurePermissions_NoFile(t *testing.T) {
	assert.False(t, config.WarnInsecurePermissions(""))
	assert.False(t, config.WarnInsecurePermissions(filepath.Join(t.TempDir(), "missing.yaml")))
}
