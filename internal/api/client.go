// Package api is the gateway to the Frndly TV REST API: typed
// operations over the upstream endpoints with transparent retry,
// re-login on auth failure, and time-bounded caching.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/frndly/frndlyd/internal/guide"
	"github.com/frndly/frndlyd/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	channelsPath   = "/service/api/v1/tvguide/channels"
	tvguidePath    = "/service/api/v1/static/tvguide"
	streamPath     = "/service/api/v1/page/stream"
	sessionEndPath = "/service/api/v1/stream/session/end"

	requestTimeout = 15 * time.Second
	retryAttempts  = 3
	retryBackoff   = 1 * time.Second

	daySeconds = 86400
)

// Endpoints are the upstream hosts the client talks to.
type Endpoints struct {
	API     string
	Guide   string
	LiveMap string
}

// DefaultEndpoints returns the production Frndly TV hosts.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:     "https://frndlytv-api.revlet.net",
		Guide:   "https://frndlytv-tvguideapi.revlet.net",
		LiveMap: "https://i.mjh.nz/frndly_tv/app.json",
	}
}

// Client issues typed calls against the upstream service. Safe for
// concurrent use; cached values and their timestamps are read and
// written together.
type Client struct {
	log        logrus.FieldLogger
	session    *session.Manager
	endpoints  Endpoints
	channelTTL time.Duration
	httpClient *http.Client

	mu              sync.RWMutex
	channelsCache   []json.RawMessage
	channelsFetched time.Time
	liveMap         guide.Mapping
}

// NewClient creates an API client bound to a session manager.
func NewClient(log logrus.FieldLogger, sess *session.Manager, endpoints Endpoints, channelTTL time.Duration) *Client {
	return &Client{
		log:        log.WithField("component", "api"),
		session:    sess,
		endpoints:  endpoints,
		channelTTL: channelTTL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// envelope is the upstream response convention: a payload under
// "response" on success, a numeric code and message under "error"
// otherwise.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// request performs one upstream call with the bounded retry/re-login
// loop: up to 3 attempts with a fixed 1-second backoff on transport
// failure; a 404 error payload is terminal; any other error payload
// forces a re-login before the next attempt.
func (c *Client) request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		env, err := c.doRequest(ctx, endpoint, params)

		switch {
		case err != nil:
			c.log.WithError(err).WithField("endpoint", endpoint).Warn("Request failed")
		case env.Response != nil:
			return env.Response, nil
		case env.Error != nil && env.Error.Code == 404:
			return nil, &NotAvailableError{Message: env.Error.Message}
		default:
			if env.Error != nil {
				c.log.WithFields(logrus.Fields{
					"code":    env.Error.Code,
					"message": env.Error.Message,
				}).Warn("API error, forcing re-login")
			}

			if _, loginErr := c.session.Login(ctx); loginErr != nil {
				return nil, loginErr
			}

			continue
		}

		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
	}

	return nil, &UpstreamError{Endpoint: endpoint}
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	requestURL := endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	c.log.WithField("url", requestURL).Debug("Request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = c.session.Headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &env, nil
}

// Channels returns the raw channel catalog with promotional banner
// rows removed, served from a time-bounded cache unless forceRefresh
// is set. An empty post-filter catalog is reported as a regional
// availability error.
func (c *Client) Channels(ctx context.Context, forceRefresh bool) ([]json.RawMessage, error) {
	if !forceRefresh {
		c.mu.RLock()
		cached, fetched := c.channelsCache, c.channelsFetched
		c.mu.RUnlock()

		if cached != nil && time.Since(fetched) < c.channelTTL {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("skip_tabs", "0")

	payload, err := c.request(ctx, c.endpoints.API+channelsPath, params)
	if err != nil {
		return nil, err
	}

	var body struct {
		Data []json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &UpstreamError{Endpoint: channelsPath, Message: fmt.Sprintf("unexpected channel list shape: %v", err)}
	}

	channels := make([]json.RawMessage, 0, len(body.Data))

	for _, record := range body.Data {
		if !guide.IsBanner(record) {
			channels = append(channels, record)
		}
	}

	if len(channels) == 0 {
		return nil, &NotAvailableError{
			Message: "no channels returned; this is likely due to your IP location, Frndly TV may not be available in your region",
		}
	}

	c.mu.Lock()
	c.channelsCache = channels
	c.channelsFetched = time.Now()
	c.mu.Unlock()

	c.log.WithField("channels", len(channels)).Debug("Channel list refreshed")

	return channels, nil
}

// Guide fetches raw guide data for the given channels, one upstream
// request per day with a 24-hour cursor. A failed day is logged and
// omitted; partial results are returned rather than failing the call.
func (c *Client) Guide(ctx context.Context, channelIDs []string, start int64, days int) map[string][]json.RawMessage {
	programs := make(map[string][]json.RawMessage)
	cursor := start

	for day := 0; day < days; day++ {
		params := url.Values{}
		params.Set("channel_ids", joinIDs(channelIDs))
		params.Set("page", "0")

		if cursor > 0 {
			end := cursor + daySeconds
			params.Set("start_time", fmt.Sprintf("%d", cursor*1000))
			params.Set("end_time", fmt.Sprintf("%d", end*1000))
			cursor = end
		}

		payload, err := c.request(ctx, c.endpoints.Guide+tvguidePath, params)
		if err != nil {
			c.log.WithError(err).WithField("day", day).Error("Failed to get guide data")

			continue
		}

		var body struct {
			Data []struct {
				ChannelID json.Number       `json:"channelId"`
				Programs  []json.RawMessage `json:"programs"`
			} `json:"data"`
		}

		if err := json.Unmarshal(payload, &body); err != nil {
			c.log.WithError(err).WithField("day", day).Error("Unexpected guide data shape")

			continue
		}

		for _, row := range body.Data {
			id := row.ChannelID.String()
			programs[id] = append(programs[id], row.Programs...)
		}
	}

	return programs
}

// GuideWindow fetches raw guide data for a span of days starting now.
func (c *Client) GuideWindow(ctx context.Context, channelIDs []string, days int) map[string][]json.RawMessage {
	return c.Guide(ctx, channelIDs, time.Now().Unix(), days)
}

// CurrentAndNext returns the programs airing now and immediately after
// for each channel. The guide sequence is time-ordered by upstream
// convention, so "next" is simply the entry following "now"; no
// separate request is made.
func (c *Client) CurrentAndNext(ctx context.Context, channelIDs []string) (current, next map[string]*guide.Program) {
	current = make(map[string]*guide.Program)
	next = make(map[string]*guide.Program)
	now := time.Now()

	for channelID, records := range c.Guide(ctx, channelIDs, 0, 1) {
		for i, record := range records {
			prog, err := guide.ParseProgram(record, channelID)
			if err != nil {
				continue
			}

			if !prog.Airing(now) {
				continue
			}

			current[channelID] = prog

			if i+1 < len(records) {
				if upNext, err := guide.ParseProgram(records[i+1], channelID); err == nil {
					next[channelID] = upNext
				}
			}

			break
		}
	}

	return current, next
}

// NormalizedChannels returns the channel catalog merged with the
// external mapping document. Records that fail to parse are skipped.
func (c *Client) NormalizedChannels(ctx context.Context, forceRefresh bool) ([]*guide.Channel, error) {
	raw, err := c.Channels(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	mapping := c.LiveMap(ctx)

	channels := make([]*guide.Channel, 0, len(raw))

	for _, record := range raw {
		ch, err := guide.ParseChannel(record, mapping)
		if err != nil {
			c.log.WithError(err).Warn("Skipping unparseable channel record")

			continue
		}

		channels = append(channels, ch)
	}

	return channels, nil
}

// ChannelWithPrograms is a normalized channel with its now/next
// programs attached.
type ChannelWithPrograms struct {
	guide.Channel
	Current *guide.Program
	Next    *guide.Program
}

// ChannelsDetailed returns normalized channels with now/next program
// info, the collaborator-facing channel listing.
func (c *Client) ChannelsDetailed(ctx context.Context, forceRefresh bool) ([]ChannelWithPrograms, error) {
	channels, err := c.NormalizedChannels(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}

	current, next := c.CurrentAndNext(ctx, ids)

	detailed := make([]ChannelWithPrograms, 0, len(channels))

	for _, ch := range channels {
		detailed = append(detailed, ChannelWithPrograms{
			Channel: *ch,
			Current: current[ch.ID],
			Next:    next[ch.ID],
		})
	}

	return detailed, nil
}

// ProgramsForChannel returns the normalized guide for one channel over
// the next days, skipping records that fail to parse.
func (c *Client) ProgramsForChannel(ctx context.Context, channelID string, days int) []*guide.Program {
	records := c.Guide(ctx, []string{channelID}, time.Now().Unix(), days)

	programs := make([]*guide.Program, 0, len(records[channelID]))

	for _, record := range records[channelID] {
		prog, err := guide.ParseProgram(record, channelID)
		if err != nil {
			continue
		}

		programs = append(programs, prog)
	}

	return programs
}

// KeepAlive re-logs-in when the session TTL has lapsed, otherwise
// forces a channel cache refresh. Safe to invoke concurrently with
// in-flight request handling.
func (c *Client) KeepAlive(ctx context.Context) error {
	if !c.session.IsValid() {
		c.log.Info("Session expired, forcing re-login")

		if _, err := c.session.Login(ctx); err != nil {
			return err
		}

		return nil
	}

	if _, err := c.Channels(ctx, true); err != nil {
		var notAvailable *NotAvailableError
		if errors.As(err, &notAvailable) {
			return err
		}

		return fmt.Errorf("keep-alive channel refresh failed: %w", err)
	}

	return nil
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
