package guide

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Channel is a normalized upstream channel merged with its external
// mapping entry. Consumers hold read-only copies.
type Channel struct {
	// ID is the raw upstream identifier; GuideID is the prefixed form
	// used in playlists and XMLTV documents.
	ID      string
	GuideID string

	Name     string
	Number   int
	Slug     string
	Logo     string
	Category string
	IsHD     bool

	// GracenoteID cross-references a third-party EPG provider; set
	// only when the mapping document carries one.
	GracenoteID string
}

// ParseChannel normalizes one raw catalog record, merging in the
// external mapping entry for its identifier.
func ParseChannel(data json.RawMessage, mapping Mapping) (*Channel, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse channel record: %w", err)
	}

	return parseChannel(raw, mapping), nil
}

func parseChannel(raw map[string]any, mapping Mapping) *Channel {
	display := subMap(raw, "display")
	metadata := subMap(raw, "metadata")

	ch := &Channel{
		ID:   stringValue(raw["id"]),
		Name: firstString(display, "title"),
	}

	ch.GuideID = "frndly-" + ch.ID

	if ch.Name == "" {
		ch.Name = "Unknown Channel"
	}

	entry, mapped := mapping[ch.ID]

	ch.Number = channelNumber(entry, metadata, ch.ID)

	ch.Slug = ch.ID
	if mapped && entry.Slug != "" {
		ch.Slug = entry.Slug + "-" + ch.ID
	}

	ch.Logo = LogoURL(firstString(display, "imageUrl"))
	ch.GracenoteID = entry.Gracenote
	ch.Category = firstString(metadata, "category", "group")
	ch.IsHD = firstBool(metadata, "isHD") || strings.Contains(strings.ToLower(ch.Name), "hd")

	return ch
}

// channelNumber resolves the display number: mapping chno, then the
// catalog channelNumber field, then the raw identifier. Non-numeric
// values resolve to 0.
func channelNumber(entry MappingEntry, metadata map[string]any, id string) int {
	if entry.Chno != "" {
		if n, err := strconv.Atoi(entry.Chno.String()); err == nil {
			return n
		}
	}

	if n, ok := firstInt(metadata, "channelNumber"); ok {
		return n
	}

	if n, err := strconv.Atoi(id); err == nil {
		return n
	}

	return 0
}

// IsBanner reports whether a raw catalog record is a promotional
// "channel banner" row. The upstream flag is a string compared
// case-insensitively to "true".
func IsBanner(data json.RawMessage) bool {
	var raw struct {
		Metadata struct {
			IsChannelBanner string `json:"isChannelBanner"`
		} `json:"metadata"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}

	return strings.EqualFold(raw.Metadata.IsChannelBanner, "true")
}
