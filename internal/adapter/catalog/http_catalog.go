package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Minute
	maxBodyBytes     = 1 << 20
)

// HTTPCatalog reads parts from the remote catalog API at
// GET {baseURL}/parts/{id}. Hits and misses are cached for the TTL.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, *domain.Part]
	logger  *zap.Logger
}

func NewHTTPCatalog(baseURL string, client *http.Client, ttl time.Duration, logger *zap.Logger) *HTTPCatalog {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   expirable.NewLRU[string, *domain.Part](defaultCacheSize, nil, ttl),
		logger:  logger.Named("catalog"),
	}
}

func (c *HTTPCatalog) GetPart(ctx context.Context, partID string) (*domain.Part, error) {
	if part, ok := c.cache.Get(partID); ok {
		return part, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parts/"+url.PathEscape(partID), nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.cache.Add(partID, nil)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d for part %s", resp.StatusCode, partID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	part, err := DecodePart(body)
	if err != nil {
		return nil, err
	}
	if part.ID != partID {
		c.logger.Warn("catalog returned a different part id",
			zap.String("requested", partID), zap.String("returned", part.ID))
		part.ID = partID
	}

	c.cache.Add(partID, &part)
	return &part, nil
}
