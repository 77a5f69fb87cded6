package compliance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// CatalogSource defines where a catalog is loaded from.
type CatalogSource string

const (
	// SourceEmbedded uses the catalog embedded in the binary
	SourceEmbedded CatalogSource = "embedded"

	// SourceLocal reads a catalog file from disk
	SourceLocal CatalogSource = "local"

	// SourceRemote fetches a catalog over HTTP(S)
	SourceRemote CatalogSource = "remote"
)

// maxRemoteCatalogSize bounds how much of a remote response is read.
const maxRemoteCatalogSize = 4 << 20

// CatalogLoader loads catalogs from various sources.
type CatalogLoader struct {
	source     CatalogSource
	localPath  string
	remoteURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// CatalogLoaderOption configures the loader.
type CatalogLoaderOption func(*CatalogLoader)

// NewCatalogLoader creates a new catalog loader.
func NewCatalogLoader(source CatalogSource, opts ...CatalogLoaderOption) *CatalogLoader {
	loader := &CatalogLoader{
		source:     source,
		httpClient: http.DefaultClient,
		logger:     slog.Default().With("component", "catalog-loader"),
	}

	for _, opt := range opts {
		opt(loader)
	}

	return loader
}

// WithLocalPath sets the catalog file path.
func WithLocalPath(path string) CatalogLoaderOption {
	return func(l *CatalogLoader) {
		l.localPath = path
	}
}

// WithRemoteURL sets the catalog URL.
func WithRemoteURL(url string) CatalogLoaderOption {
	return func(l *CatalogLoader) {
		l.remoteURL = url
	}
}

// WithHTTPClient overrides the client used for remote catalogs.
func WithHTTPClient(client *http.Client) CatalogLoaderOption {
	return func(l *CatalogLoader) {
		l.httpClient = client
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) CatalogLoaderOption {
	return func(l *CatalogLoader) {
		l.logger = logger
	}
}

// Load reads, parses and validates a catalog from the configured source.
func (l *CatalogLoader) Load(ctx context.Context) (*Catalog, error) {
	var (
		cat *Catalog
		err error
	)

	switch l.source {
	case SourceEmbedded:
		cat, err = DefaultCatalog()
	case SourceLocal:
		cat, err = l.loadLocal()
	case SourceRemote:
		cat, err = l.loadRemote(ctx)
	default:
		return nil, fmt.Errorf("unknown catalog source: %s", l.source)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug("catalog loaded",
		"source", l.source,
		"frameworks", len(cat.Frameworks),
		"controls", len(cat.Controls))
	return cat, nil
}

// LoadMapper loads the catalog and builds a Mapper over it.
func (l *CatalogLoader) LoadMapper(ctx context.Context) (*Mapper, error) {
	cat, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewMapper(cat)
}

func (l *CatalogLoader) loadLocal() (*Catalog, error) {
	if l.localPath == "" {
		return nil, fmt.Errorf("local path not specified")
	}

	content, err := os.ReadFile(l.localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.localPath, err)
	}

	cat, err := ParseCatalog(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.localPath, err)
	}
	return cat, nil
}

func (l *CatalogLoader) loadRemote(ctx context.Context) (*Catalog, error) {
	if l.remoteURL == "" {
		return nil, fmt.Errorf("remote URL not specified")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.remoteURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog not found at %s (status %d)", l.remoteURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	cat, err := ParseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.remoteURL, err)
	}
	return cat, nil
}
