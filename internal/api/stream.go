package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/frndly/frndlyd/internal/guide"
)

// ResolveStream requests a stream descriptor for a playback path and
// returns the playable URL. The candidate variant is chosen
// deterministically: all offered streams sorted by license key
// ascending, first taken. DRM-protected variants are rejected outright.
func (c *Client) ResolveStream(ctx context.Context, path string) (string, error) {
	params := url.Values{}
	params.Set("path", path)
	params.Set("code", path)
	params.Set("include_ads", "false")
	params.Set("is_casted", "true")

	payload, err := c.request(ctx, c.endpoints.API+streamPath, params)
	if err != nil {
		return "", err
	}

	var body struct {
		Streams []struct {
			URL        string `json:"url"`
			StreamType string `json:"streamType"`
			Keys       struct {
				LicenseKey string `json:"licenseKey"`
			} `json:"keys"`
		} `json:"streams"`
		PlayerSettings []struct {
			Value json.Number `json:"value"`
		} `json:"playerSettings"`
		SessionInfo struct {
			StreamPollKey string `json:"streamPollKey"`
		} `json:"sessionInfo"`
	}

	if err := json.Unmarshal(payload, &body); err != nil || len(body.Streams) == 0 {
		return "", &UpstreamError{Endpoint: streamPath, Message: "unable to find stream for: " + path}
	}

	sort.SliceStable(body.Streams, func(i, j int) bool {
		return body.Streams[i].Keys.LicenseKey < body.Streams[j].Keys.LicenseKey
	})

	stream := body.Streams[0]

	if strings.EqualFold(strings.TrimSpace(stream.StreamType), "widevine") {
		return "", &UnsupportedStreamError{StreamType: stream.StreamType}
	}

	streamURL := stream.URL

	// Playback start offset, when the player settings carry one.
	if len(body.PlayerSettings) > 0 {
		if ms, err := body.PlayerSettings[0].Value.Int64(); err == nil {
			start := ms / 1000
			streamURL += fmt.Sprintf("&start=%d&startTime=%d", start, start)
		}
	}

	c.log.WithField("path", path).Debug("Stream URL obtained")

	c.notifySessionEnd(ctx, body.SessionInfo.StreamPollKey)

	return streamURL, nil
}

// notifySessionEnd tells the upstream session-poll endpoint that
// playback ended. Best-effort: failures must never fail resolution.
func (c *Client) notifySessionEnd(ctx context.Context, pollKey string) {
	if pollKey == "" {
		return
	}

	form := url.Values{}
	form.Set("poll_key", pollKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoints.API+sessionEndPath, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}

	req.Header = c.session.Headers()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Debug("Failed to notify stream session end")

		return
	}

	resp.Body.Close()
}

// Play resolves a playback slug to a stream URL. A numeric slug is a
// raw channel identifier; a "{name}-{id}" slug tries the named live
// path first and falls back to scanning the guide for the channel's
// current program. DRM rejections never fall back.
func (c *Client) Play(ctx context.Context, slug string) (string, error) {
	channelID := slug

	if !isDigits(slug) {
		if idx := strings.LastIndex(slug, "-"); idx > 0 {
			name, id := slug[:idx], slug[idx+1:]

			streamURL, err := c.ResolveStream(ctx, "channel/live/"+name)
			if err == nil {
				return streamURL, nil
			}

			var unsupported *UnsupportedStreamError
			if errors.As(err, &unsupported) {
				return "", err
			}

			c.log.WithError(err).WithField("slug", name).Debug("Slug playback failed, falling back to channel ID")

			channelID = id
		}
	}

	c.log.WithField("channel", channelID).Debug("Playing channel")

	path, err := c.channelPath(ctx, channelID)
	if err != nil {
		return "", err
	}

	return c.ResolveStream(ctx, path)
}

// channelPath finds the playback path of the program currently airing
// on a channel.
func (c *Client) channelPath(ctx context.Context, channelID string) (string, error) {
	now := time.Now()

	for _, record := range c.Guide(ctx, []string{channelID}, 0, 1)[channelID] {
		prog, err := guide.ParseProgram(record, channelID)
		if err != nil {
			continue
		}

		if prog.Airing(now) && prog.Path != "" {
			return prog.Path, nil
		}
	}

	return "", &NotAvailableError{Message: "unable to find live stream for channel: " + channelID}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
