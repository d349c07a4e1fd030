package guide

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// episodePattern recovers season/episode numbers from titles like
// "Some Show S01E05" when the metadata carries no explicit fields.
var episodePattern = regexp.MustCompile(`[Ss](\d+)[Ee](\d+)`)

// Program is a normalized guide entry belonging to exactly one channel.
type Program struct {
	ChannelID string

	Title        string
	Description  string
	Subtitle     string
	EpisodeTitle string

	// Unix seconds. Upstream markers are millisecond resolution and
	// may describe inverted or zero-width windows; they are passed
	// through as received.
	StartTime int64
	EndTime   int64
	Duration  int64

	Season  int
	Episode int

	ContentType string
	IsMovie     bool
	IsSeries    bool
	IsLive      bool
	IsNew       bool
	IsPremiere  bool
	IsFinale    bool
	IsRepeat    bool

	Rating          string
	Year            int
	OriginalAirDate string

	Genres    []string
	Cast      []string
	Directors []string

	Thumbnail string
	Poster    string
	Fanart    string
	Icon      string

	ProgramID string
	SeriesID  string

	// Path is the upstream playback path for live entries.
	Path string
}

// ParseProgram normalizes one raw guide record for the given channel.
func ParseProgram(data json.RawMessage, channelID string) (*Program, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse program record: %w", err)
	}

	return parseProgram(raw, channelID), nil
}

func parseProgram(raw map[string]any, channelID string) *Program {
	display := subMap(raw, "display")
	metadata := subMap(raw, "metadata")
	markers := subMap(display, "markers")

	p := &Program{
		ChannelID:   channelID,
		Title:       firstString(display, "title"),
		Description: firstString(display, "description"),
		Subtitle:    firstString(display, "subtitle"),
	}

	if p.Title == "" {
		p.Title = "Unknown"
	}

	p.StartTime = markerMillis(markers, "startTime") / 1000
	p.EndTime = markerMillis(markers, "endTime") / 1000
	p.Duration = p.EndTime - p.StartTime

	if p.Duration < 0 {
		p.Duration = 0
	}

	p.Season, _ = firstInt(metadata, "seasonNumber", "season")
	p.Episode, _ = firstInt(metadata, "episodeNumber", "episode")

	p.EpisodeTitle = firstString(metadata, "episodeTitle")
	if p.EpisodeTitle == "" {
		p.EpisodeTitle = p.Subtitle
	}

	if p.Season == 0 || p.Episode == 0 {
		if match := episodePattern.FindStringSubmatch(p.Title + " " + p.Subtitle); match != nil {
			p.Season, _ = strconv.Atoi(match[1])
			p.Episode, _ = strconv.Atoi(match[2])
		}
	}

	p.ContentType = strings.ToLower(firstString(metadata, "contentType", "type"))
	if p.ContentType == "" {
		p.ContentType = "show"
	}

	switch p.ContentType {
	case "movie", "film", "feature":
		p.IsMovie = true
	case "series", "show", "episode", "tvshow":
		p.IsSeries = true
	}

	p.IsLive = firstBool(metadata, "isLive", "live")
	p.IsNew = firstBool(metadata, "isNew", "new")
	p.IsPremiere = firstBool(metadata, "isPremiere")
	p.IsFinale = firstBool(metadata, "isFinale")
	p.IsRepeat = firstBool(metadata, "isRepeat")

	p.Rating = NormalizeRating(firstString(metadata, "rating", "tvRating", "contentRating"))

	p.OriginalAirDate = firstString(metadata, "originalAirDate")
	p.Year = parseYear(metadata, p.OriginalAirDate)

	p.Genres = firstList(metadata, "genres", "genre")
	p.Cast = firstList(metadata, "cast", "actors")
	p.Directors = firstList(metadata, "directors", "director")

	p.parseArtwork(display, metadata)

	p.ProgramID = firstString(raw, "id")
	if p.ProgramID == "" {
		p.ProgramID = firstString(metadata, "programId", "id")
	}

	p.SeriesID = firstString(metadata, "seriesId")

	target := subMap(raw, "target")
	p.Path = firstString(target, "path")

	return p
}

// parseYear reads an explicit year field, falling back to the first
// four characters of the original-air-date string. Non-digit results
// are discarded.
func parseYear(metadata map[string]any, airDate string) int {
	if year, ok := firstInt(metadata, "year", "releaseYear"); ok && year > 0 {
		return year
	}

	if len(airDate) >= 4 {
		if year, err := strconv.Atoi(airDate[:4]); err == nil {
			return year
		}
	}

	return 0
}

// parseArtwork derives the four artwork URLs from the first usable
// image reference. A "{bucket},{path}" pair expands through the CDN
// template at the four fixed sizes; a plain http URL passes through.
func (p *Program) parseArtwork(display, metadata map[string]any) {
	sources := []string{
		firstString(display, "imageUrl"),
		firstString(metadata, "thumbnail"),
		firstString(metadata, "image"),
		firstString(metadata, "posterUrl"),
		firstString(metadata, "backgroundUrl"),
	}

	for _, src := range sources {
		if src == "" {
			continue
		}

		if strings.Contains(src, ",") {
			p.Thumbnail = ImageURL(src, thumbnailSize)
			p.Poster = ImageURL(src, posterSize)
			p.Fanart = ImageURL(src, fanartSize)
			p.Icon = ImageURL(src, iconSize)

			return
		}

		if strings.HasPrefix(src, "http") {
			p.Thumbnail = src
			p.Poster = src

			return
		}
	}
}

// Progress returns playback progress as a percentage in [0, 100].
// Zero-width or inverted windows yield 0.
func (p *Program) Progress(now time.Time) int {
	if p.StartTime == 0 || p.EndTime == 0 || p.EndTime <= p.StartTime {
		return 0
	}

	cur := now.Unix()

	if cur < p.StartTime {
		return 0
	}

	if cur > p.EndTime {
		return 100
	}

	return int((cur - p.StartTime) * 100 / (p.EndTime - p.StartTime))
}

// TimeRemaining returns whole minutes until the program ends.
func (p *Program) TimeRemaining(now time.Time) int {
	remaining := p.EndTime - now.Unix()
	if remaining < 0 {
		return 0
	}

	return int(remaining / 60)
}

// FormatEpisode renders "S01E05" style episode numbering, "E05" when
// only the episode is known, or "" when neither is.
func (p *Program) FormatEpisode() string {
	if p.Season > 0 && p.Episode > 0 {
		return fmt.Sprintf("S%02dE%02d", p.Season, p.Episode)
	}

	if p.Episode > 0 {
		return fmt.Sprintf("E%02d", p.Episode)
	}

	return ""
}

// Airing reports whether the program window contains now.
func (p *Program) Airing(now time.Time) bool {
	cur := now.Unix()

	return p.StartTime <= cur && cur <= p.EndTime
}
