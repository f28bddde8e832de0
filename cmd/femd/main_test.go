// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FEM_DATA_DIR", dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigCLI_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "valid", body: "tenant: ACME\nstore:\n  backend: memory\n", code: 0},
		{name: "unknown key", body: "tenantt: ACME\n", code: 1},
		{name: "invalid value", body: "scheduler:\n  maxBulkSize: 0\n", code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			var out, errOut bytes.Buffer
			code := configCLI([]string{"validate", "-f", path}, &out, &errOut)
			assert.Equal(t, tt.code, code, errOut.String())
			if tt.code == 0 {
				assert.Contains(t, out.String(), "is valid")
			}
		})
	}
}

func TestConfigCLI_DumpRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: postgres\n  dsn: postgres://u:p@db/fem\nstorage:\n  token: abc\n")
	var out, errOut bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"dump", "--file", path}, &out, &errOut), errOut.String())

	assert.NotContains(t, out.String(), "u:p@db")
	assert.NotContains(t, out.String(), "abc")
	assert.Contains(t, out.String(), redacted)
	assert.Contains(t, out.String(), "backend: postgres")
}

func TestConfigCLI_UnknownSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, configCLI([]string{"explode"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Unknown subcommand")
}

func TestHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.Equal(t, 0, healthcheck(srv.URL, "live", time.Second))
	assert.Equal(t, 1, healthcheck(srv.URL, "ready", time.Second))
}

func TestConfigCLI_DumpToFile(t *testing.T) {
	path := writeConfig(t, "tenant: ACME\nstore:\n  backend: memory\n")
	out := filepath.Join(t.TempDir(), "effective.yaml")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"dump", "-f", path, "--out", out}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tenant: ACME")

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
