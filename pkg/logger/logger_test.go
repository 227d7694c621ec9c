// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	log := New("Test")
	log.Info("hello %d", 1)
	log.Warn("careful")
	log.Error("broken")

	out := buf.String()
	assert.Contains(t, out, "[Test] INFO: hello 1")
	assert.Contains(t, out, "[Test] WARN: careful")
	assert.Contains(t, out, "[Test] ERROR: (logger_test.go:")
}

func TestDebugToggle(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer EnableDebug(false)

	log := New("Dbg")
	EnableDebug(false)
	log.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	EnableDebug(true)
	assert.True(t, IsDebug())
	log.Debug("shown")
	assert.Contains(t, buf.String(), "[Dbg] DEBUG: shown")
}

func TestFatalPanics(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	assert.PanicsWithValue(t, "fatal 7", func() {
		New("F").Fatal("fatal %d", 7)
	})
	assert.Contains(t, buf.String(), "FATAL")
}

func TestInitWritesFileAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chamber.log")
	require.NoError(t, Init(path))
	defer Close()

	New("File").Info("to disk")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to disk")

	svc := WebService()
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clear", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}

func TestWebServiceToggle(t *testing.T) {
	defer EnableDebug(false)
	EnableDebug(false)

	svc := WebService()
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, IsDebug())

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Debug:")
}
