package compliance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loaderTestCatalog = `
version: 1
frameworks:
  - id: CIS
    aliases: [CIS Azure 2.0]
    mappings:
      aks-rbac-enabled: [CIS-5.2.1]
      aks-private-cluster: [CIS-4.2.2]
`

func TestCatalogLoader_Embedded(t *testing.T) {
	m, err := NewCatalogLoader(SourceEmbedded).LoadMapper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Framework{FrameworkCIS, FrameworkASB, FrameworkNIST}, m.Frameworks())
	assert.Equal(t, m.ControlsForFramework("NIST CSF"), m.ControlsForFramework("nist"))
}

func TestCatalogLoader_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loaderTestCatalog), 0o644))

	m, err := NewCatalogLoader(SourceLocal, WithLocalPath(path)).LoadMapper(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"aks-rbac-enabled", "aks-private-cluster"}, m.ControlsForFramework("cis azure 2.0"))
}

func TestCatalogLoader_LocalErrors(t *testing.T) {
	_, err := NewCatalogLoader(SourceLocal).Load(context.Background())
	assert.EqualError(t, err, "local path not specified")

	_, err = NewCatalogLoader(SourceLocal, WithLocalPath(filepath.Join(t.TempDir(), "missing.yaml"))).Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 9\nframeworks: []\n"), 0o644))
	_, err = NewCatalogLoader(SourceLocal, WithLocalPath(path)).Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestCatalogLoader_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog.yaml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(loaderTestCatalog))
	}))
	defer srv.Close()

	loader := NewCatalogLoader(SourceRemote,
		WithRemoteURL(srv.URL+"/catalog.yaml"),
		WithHTTPClient(srv.Client()))

	cat, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.Frameworks, 1)
	assert.Len(t, cat.Frameworks[0].Mappings, 2)

	_, err = NewCatalogLoader(SourceRemote,
		WithRemoteURL(srv.URL+"/missing.yaml"),
		WithHTTPClient(srv.Client())).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestCatalogLoader_RemoteHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loaderTestCatalog))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCatalogLoader(SourceRemote, WithRemoteURL(srv.URL)).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCatalogLoader_UnknownSource(t *testing.T) {
	_, err := NewCatalogLoader(CatalogSource("s3")).Load(context.Background())
	assert.EqualError(t, err, "unknown catalog source: s3")
}
