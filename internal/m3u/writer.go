// Package m3u renders normalized channels as an extended M3U8
// playlist for IPTV clients.
package m3u

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/frndly/frndlyd/internal/guide"
)

// Gracenote filter values.
const (
	GracenoteInclude = "include"
	GracenoteExclude = "exclude"
)

// Options are the query-level playlist policies. All are optional and
// composable.
type Options struct {
	// StartChno overrides channel numbering with a counter starting
	// here; nil falls back to each channel's natural number.
	StartChno *int

	// Include restricts output to these guide IDs; Exclude removes
	// them. Matching is case-insensitive.
	Include []string
	Exclude []string

	// Gracenote filters by presence ("include") or absence
	// ("exclude") of an external guide identifier.
	Gracenote string
}

// ParseOptions reads playlist policies from request query values.
func ParseOptions(query url.Values) Options {
	opts := Options{
		Include:   splitList(query.Get("include")),
		Exclude:   splitList(query.Get("exclude")),
		Gracenote: strings.ToLower(strings.TrimSpace(query.Get("gracenote"))),
	}

	if raw := query.Get("start_chno"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.StartChno = &n
		}
	}

	return opts
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			items = append(items, part)
		}
	}

	return items
}

// Keep reports whether a channel survives the include/exclude and
// gracenote policies.
func (o Options) Keep(ch *guide.Channel) bool {
	guideID := strings.ToLower(ch.GuideID)

	if len(o.Include) > 0 && !contains(o.Include, guideID) {
		return false
	}

	if contains(o.Exclude, guideID) {
		return false
	}

	if o.Gracenote == GracenoteInclude && ch.GracenoteID == "" {
		return false
	}

	if o.Gracenote == GracenoteExclude && ch.GracenoteID != "" {
		return false
	}

	return true
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}

	return false
}

// Write streams the playlist: a single #EXTM3U directive pointing at
// this server's EPG endpoint, then one #EXTINF line per surviving
// channel with a playback URL back at the play redirect route.
func Write(w io.Writer, host string, channels []*guide.Channel, opts Options) error {
	epgURL := fmt.Sprintf("http://%s/epg.xml", host)
	if opts.Gracenote != "" {
		epgURL += "?gracenote=" + opts.Gracenote
	}

	if _, err := fmt.Fprintf(w, "#EXTM3U x-tvg-url=%q\n", epgURL); err != nil {
		return err
	}

	chno := 0
	if opts.StartChno != nil {
		chno = *opts.StartChno
	}

	for _, ch := range channels {
		if !opts.Keep(ch) {
			continue
		}

		attrs := []string{
			fmt.Sprintf("channel-id=%q", ch.GuideID),
			fmt.Sprintf("tvg-id=%q", ch.GuideID),
		}

		if ch.Logo != "" {
			attrs = append(attrs, fmt.Sprintf("tvg-logo=%q", ch.Logo))
		}

		if ch.GracenoteID != "" {
			attrs = append(attrs, fmt.Sprintf("tvc-guide-stationid=%q", ch.GracenoteID))
		}

		if opts.StartChno != nil && chno > 0 {
			attrs = append(attrs, fmt.Sprintf("tvg-chno=%q", strconv.Itoa(chno)))
			chno++
		} else if ch.Number > 0 {
			attrs = append(attrs, fmt.Sprintf("tvg-chno=%q", strconv.Itoa(ch.Number)))
		}

		attrs = append(attrs,
			fmt.Sprintf("tvg-name=%q", ch.Name),
			`radio="false"`,
		)

		streamURL := fmt.Sprintf("http://%s/play/%s.m3u8", host, ch.Slug)

		if _, err := fmt.Fprintf(w, "#EXTINF:-1 %s,%s\n%s\n", strings.Join(attrs, " "), ch.Name, streamURL); err != nil {
			return err
		}
	}

	return nil
}
