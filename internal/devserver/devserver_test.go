package devserver_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jadujoel/pressure-observer/internal/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServesStaticFiles(t *testing.T) {
	root := t.TempDir()
	err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>ok</html>"), 0o600)
	require.NoError(t, err)

	server, err := devserver.New(devserver.Config{Addr: ":0", Root: root})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(body))

	resp, err = http.Get(ts.URL + "/missing.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMissingRoot(t *testing.T) {
	_, err := devserver.New(devserver.Config{Addr: ":0", Root: "/does/not/exist"})
	require.Error(t, err)
}
