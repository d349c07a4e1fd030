package guide

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rawRecord(t *testing.T, record map[string]any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(record)
	require.NoError(t, err)

	return data
}

func programRecord(t *testing.T, display, metadata map[string]any) json.RawMessage {
	t.Helper()

	return rawRecord(t, map[string]any{
		"id":       "prog-1",
		"display":  display,
		"metadata": metadata,
		"target":   map[string]any{"path": "channel/live/test"},
	})
}

func markers(startMs, endMs int64) map[string]any {
	return map[string]any{
		"startTime": map[string]any{"value": startMs},
		"endTime":   map[string]any{"value": endMs},
	}
}

func TestParseProgram_Times(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title":   "SportsCenter",
		"markers": markers(1700000000000, 1700001800000),
	}, map[string]any{})

	prog, err := ParseProgram(record, "42")
	require.NoError(t, err)

	require.Equal(t, "42", prog.ChannelID)
	require.Equal(t, int64(1700000000), prog.StartTime)
	require.Equal(t, int64(1700001800), prog.EndTime)
	require.Equal(t, int64(1800), prog.Duration)
	require.Equal(t, "channel/live/test", prog.Path)
}

func TestParseProgram_InvertedWindow(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title":   "Backwards",
		"markers": markers(1700001800000, 1700000000000),
	}, map[string]any{})

	prog, err := ParseProgram(record, "42")
	require.NoError(t, err)

	// Inverted windows pass through; derived values clamp to zero.
	require.Equal(t, int64(0), prog.Duration)
	require.Equal(t, 0, prog.Progress(time.Unix(1700000900, 0)))
}

func TestParseProgram_ExplicitEpisodeFields(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title": "Some Show",
	}, map[string]any{
		"seasonNumber":  1,
		"episodeNumber": 5,
	})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	require.Equal(t, 1, prog.Season)
	require.Equal(t, 5, prog.Episode)
	require.Equal(t, "S01E05", prog.FormatEpisode())
}

func TestParseProgram_EpisodeFromTitlePattern(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title": "Show S01E05",
	}, map[string]any{})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	// Same result as explicit season=1, episode=5.
	require.Equal(t, 1, prog.Season)
	require.Equal(t, 5, prog.Episode)
	require.Equal(t, "S01E05", prog.FormatEpisode())
}

func TestParseProgram_EpisodeFallbackOrder(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title": "Show S09E09",
	}, map[string]any{
		"season":  "2",
		"episode": "7",
	})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	// Explicit alternate fields win over the title pattern.
	require.Equal(t, 2, prog.Season)
	require.Equal(t, 7, prog.Episode)
}

func TestParseProgram_ContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantMovie   bool
		wantSeries  bool
	}{
		{"Movie", true, false},
		{"film", true, false},
		{"feature", true, false},
		{"series", false, true},
		{"episode", false, true},
		{"tvshow", false, true},
		{"", false, true}, // defaults to "show"
		{"sports", false, false},
	}

	for _, tt := range tests {
		t.Run("type "+tt.contentType, func(t *testing.T) {
			record := programRecord(t, map[string]any{"title": "X"}, map[string]any{
				"contentType": tt.contentType,
			})

			prog, err := ParseProgram(record, "1")
			require.NoError(t, err)
			require.Equal(t, tt.wantMovie, prog.IsMovie)
			require.Equal(t, tt.wantSeries, prog.IsSeries)
		})
	}
}

func TestParseProgram_Flags(t *testing.T) {
	record := programRecord(t, map[string]any{"title": "X"}, map[string]any{
		"isNew":      true,
		"live":       "true",
		"isPremiere": true,
		"isRepeat":   false,
	})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	require.True(t, prog.IsNew)
	require.True(t, prog.IsLive)
	require.True(t, prog.IsPremiere)
	require.False(t, prog.IsFinale)
	require.False(t, prog.IsRepeat)
}

func TestParseProgram_RatingLookup(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"tv-pg", "TV-PG"},
		{"TV-14", "TV-14"},
		{"pg-13", "PG-13"},
		{"unrated", "Unrated"},
		{"weird-code", "WEIRD-CODE"}, // unrecognized passes through upper-cased
		{"", ""},
	}

	for _, tt := range tests {
		record := programRecord(t, map[string]any{"title": "X"}, map[string]any{
			"rating": tt.raw,
		})

		prog, err := ParseProgram(record, "1")
		require.NoError(t, err)
		require.Equal(t, tt.want, prog.Rating)
	}
}

func TestParseProgram_Year(t *testing.T) {
	explicit := programRecord(t, map[string]any{"title": "X"}, map[string]any{"year": 1999})
	prog, err := ParseProgram(explicit, "1")
	require.NoError(t, err)
	require.Equal(t, 1999, prog.Year)

	fromAirDate := programRecord(t, map[string]any{"title": "X"}, map[string]any{"originalAirDate": "2004-06-11"})
	prog, err = ParseProgram(fromAirDate, "1")
	require.NoError(t, err)
	require.Equal(t, 2004, prog.Year)

	nonDigit := programRecord(t, map[string]any{"title": "X"}, map[string]any{"originalAirDate": "June 2004"})
	prog, err = ParseProgram(nonDigit, "1")
	require.NoError(t, err)
	require.Equal(t, 0, prog.Year)
}

func TestParseProgram_CommaSplitLists(t *testing.T) {
	record := programRecord(t, map[string]any{"title": "X"}, map[string]any{
		"genre":  "Drama, Comedy",
		"actors": "Jane Doe, John Roe",
		"director": []any{
			"Sam Poe",
		},
	})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	require.Equal(t, []string{"Drama", "Comedy"}, prog.Genres)
	require.Equal(t, []string{"Jane Doe", "John Roe"}, prog.Cast)
	require.Equal(t, []string{"Sam Poe"}, prog.Directors)
}

func TestParseProgram_Artwork(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title":    "X",
		"imageUrl": "bucket1,shows/poster.jpg",
	}, map[string]any{})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	require.Equal(t, "https://d229kpbsb5jevy.cloudfront.net/frndlytv/400/400/content/bucket1/shows/poster.jpg", prog.Thumbnail)
	require.Equal(t, "https://d229kpbsb5jevy.cloudfront.net/frndlytv/600/600/content/bucket1/shows/poster.jpg", prog.Poster)
	require.Equal(t, "https://d229kpbsb5jevy.cloudfront.net/frndlytv/1280/1280/content/bucket1/shows/poster.jpg", prog.Fanart)
	require.Equal(t, "https://d229kpbsb5jevy.cloudfront.net/frndlytv/200/200/content/bucket1/shows/poster.jpg", prog.Icon)
}

func TestParseProgram_ArtworkPassthroughURL(t *testing.T) {
	record := programRecord(t, map[string]any{"title": "X"}, map[string]any{
		"thumbnail": "https://example.com/direct.jpg",
	})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)

	require.Equal(t, "https://example.com/direct.jpg", prog.Thumbnail)
	require.Equal(t, "https://example.com/direct.jpg", prog.Poster)
	require.Empty(t, prog.Fanart)
}

func TestProgress(t *testing.T) {
	prog := &Program{StartTime: 1000, EndTime: 2000}

	require.Equal(t, 0, prog.Progress(time.Unix(500, 0)))
	require.Equal(t, 0, prog.Progress(time.Unix(1000, 0)))
	require.Equal(t, 50, prog.Progress(time.Unix(1500, 0)))
	require.Equal(t, 100, prog.Progress(time.Unix(2000, 0)))
	require.Equal(t, 100, prog.Progress(time.Unix(3000, 0)))
}

func TestProgress_ZeroWidthWindow(t *testing.T) {
	prog := &Program{StartTime: 1000, EndTime: 1000}

	// start == end yields 0, not a division by zero.
	require.Equal(t, 0, prog.Progress(time.Unix(1000, 0)))
}

func TestProgress_Bounds(t *testing.T) {
	prog := &Program{StartTime: 1000, EndTime: 2000}

	for _, now := range []int64{0, 999, 1000, 1001, 1999, 2000, 2001, 100000} {
		p := prog.Progress(time.Unix(now, 0))
		require.GreaterOrEqual(t, p, 0)
		require.LessOrEqual(t, p, 100)
	}
}

func TestTimeRemaining(t *testing.T) {
	prog := &Program{StartTime: 1000, EndTime: 2000}

	require.Equal(t, 10, prog.TimeRemaining(time.Unix(1400, 0)))
	require.Equal(t, 0, prog.TimeRemaining(time.Unix(5000, 0)))
}

func TestFormatEpisode(t *testing.T) {
	require.Equal(t, "S01E05", (&Program{Season: 1, Episode: 5}).FormatEpisode())
	require.Equal(t, "E05", (&Program{Episode: 5}).FormatEpisode())
	require.Empty(t, (&Program{Season: 1}).FormatEpisode())
	require.Empty(t, (&Program{}).FormatEpisode())
}

func TestParseProgram_Invalid(t *testing.T) {
	_, err := ParseProgram(json.RawMessage(`not json`), "1")
	require.Error(t, err)
}

func TestParseProgram_EpisodeTitleFallsBackToSubtitle(t *testing.T) {
	record := programRecord(t, map[string]any{
		"title":    "Show",
		"subtitle": "The One With The Test",
	}, map[string]any{})

	prog, err := ParseProgram(record, "1")
	require.NoError(t, err)
	require.Equal(t, "The One With The Test", prog.EpisodeTitle)
}
