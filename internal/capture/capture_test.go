package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:8080": "http://127.0.0.1:8080/agenda",
		"0.0.0.0:9000":   "http://127.0.0.1:9000/agenda",
		":8080":          "http://127.0.0.1:8080/agenda",
		"[::]:8080":      "http://127.0.0.1:8080/agenda",
		"widget.lan":     "http://widget.lan/agenda",
	}
	for listen, want := range tests {
		assert.Equal(t, want, PageURL(listen), listen)
	}
}

func TestOptionsNormalize(t *testing.T) {
	_, err := Options{OutputPath: "x.png"}.normalize()
	assert.Error(t, err)
	_, err = Options{URL: "http://x"}.normalize()
	assert.Error(t, err)

	o, err := Options{URL: "http://x", OutputPath: "x.png"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)

	o, err = Options{URL: "http://x", OutputPath: "x.png", Width: 984, Height: 1304, Timeout: time.Second}.normalize()
	require.NoError(t, err)
	assert.Equal(t, 984, o.Width)
	assert.Equal(t, time.Second, o.Timeout)
}

func TestAgendaRejectsMissingOptions(t *testing.T) {
	assert.Error(t, Agenda(context.Background(), Options{}))
}

func TestAuthHeader(t *testing.T) {
	assert.Equal(t, "Basic bWU6c2VjcmV0", authHeader("me", "secret"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "preview.png")
	require.NoError(t, writeFileAtomic(path, []byte("one")))
	require.NoError(t, writeFileAtomic(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
