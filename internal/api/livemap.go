package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/frndly/frndlyd/internal/guide"
)

// LiveMap fetches the external channel-mapping document. It is small
// and changes rarely, so it is refreshed on every call with no TTL;
// on failure the last known value is served.
func (c *Client) LiveMap(ctx context.Context) guide.Mapping {
	mapping, err := c.fetchLiveMap(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to download live map")

		c.mu.RLock()
		defer c.mu.RUnlock()

		return c.liveMap
	}

	c.mu.Lock()
	c.liveMap = mapping
	c.mu.Unlock()

	return mapping
}

func (c *Client) fetchLiveMap(ctx context.Context) (guide.Mapping, error) {
	var mapping guide.Mapping

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.LiveMap, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			mapping, err = guide.ParseMapping(data)

			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return mapping, nil
}
