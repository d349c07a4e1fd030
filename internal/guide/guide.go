// Package guide normalizes the loosely-typed channel and program
// records returned by the Frndly TV API into canonical entities.
package guide

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	logoURLTemplate  = "https://d229kpbsb5jevy.cloudfront.net/frndlytv/%d/%d/content/%s/logos/%s"
	imageURLTemplate = "https://d229kpbsb5jevy.cloudfront.net/frndlytv/%d/%d/content/%s/%s"

	logoSize      = 400
	thumbnailSize = 400
	posterSize    = 600
	fanartSize    = 1280
	iconSize      = 200
)

// tvRatings maps lower-cased upstream rating strings to TV Parental
// Guidelines codes. Unrecognized strings are upper-cased and passed
// through unchanged.
var tvRatings = map[string]string{
	"tv-y":     "TV-Y",
	"tv-y7":    "TV-Y7",
	"tv-y7-fv": "TV-Y7-FV",
	"tv-g":     "TV-G",
	"tv-pg":    "TV-PG",
	"tv-14":    "TV-14",
	"tv-ma":    "TV-MA",
	"g":        "G",
	"pg":       "PG",
	"pg-13":    "PG-13",
	"r":        "R",
	"nc-17":    "NC-17",
	"nr":       "NR",
	"unrated":  "Unrated",
}

// NormalizeRating maps an upstream rating string to its TV Parental
// Guidelines code.
func NormalizeRating(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}

	if rating, ok := tvRatings[raw]; ok {
		return rating
	}

	return strings.ToUpper(raw)
}

// MappingEntry is one row of the external channel-mapping document,
// keyed by upstream channel identifier.
type MappingEntry struct {
	Slug      string      `json:"slug"`
	Chno      json.Number `json:"chno"`
	Gracenote string      `json:"gracenote"`
}

// Mapping is the full external channel-mapping document.
type Mapping map[string]MappingEntry

// ParseMapping decodes the external channel-mapping document.
func ParseMapping(data []byte) (Mapping, error) {
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse channel mapping: %w", err)
	}

	return m, nil
}

// LogoURL builds a channel logo URL from an upstream "{bucket},{path}"
// image reference. Returns "" when the reference is not in that form.
func LogoURL(imgRef string) string {
	bucket, path, ok := splitImageRef(imgRef)
	if !ok {
		return ""
	}

	return fmt.Sprintf(logoURLTemplate, logoSize, logoSize, bucket, path)
}

// ImageURL builds a content image URL at the given size from an
// upstream "{bucket},{path}" image reference.
func ImageURL(imgRef string, size int) string {
	bucket, path, ok := splitImageRef(imgRef)
	if !ok {
		return ""
	}

	return fmt.Sprintf(imageURLTemplate, size, size, bucket, path)
}

func splitImageRef(imgRef string) (bucket, path string, ok bool) {
	if !strings.Contains(imgRef, ",") {
		return "", "", false
	}

	parts := strings.SplitN(imgRef, ",", 2)

	return parts[0], parts[1], true
}
