package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/frndly/frndlyd/internal/api"
	"github.com/frndly/frndlyd/internal/config"
	"github.com/frndly/frndlyd/internal/guide"
	"github.com/frndly/frndlyd/internal/m3u"
	"github.com/frndly/frndlyd/internal/xmltv"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultEPGDays = 3
	minEPGDays     = 1
	maxEPGDays     = 7
)

// Routes sets up all HTTP routes.
type Routes struct {
	log    logrus.FieldLogger
	cfg    *config.Config
	client *api.Client
}

// NewRoutes creates a new routes instance.
func NewRoutes(log logrus.FieldLogger, cfg *config.Config, client *api.Client) *Routes {
	return &Routes{
		log:    log.WithField("component", "routes"),
		cfg:    cfg,
		client: client,
	}
}

// Handler returns the main HTTP handler with all routes.
func (r *Routes) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", r.handleStatus)
	router.HandleFunc("/status", r.handleStatus)
	router.HandleFunc("/playlist.m3u8", r.handlePlaylist)
	router.HandleFunc("/playlist.m3u", r.handlePlaylist)
	router.HandleFunc("/epg.xml", r.handleEPG)
	router.HandleFunc("/play/{slug}", r.handlePlay)
	router.HandleFunc("/keep_alive", r.handleKeepAlive)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.writeError(w, http.StatusNotFound, "Not Found")
	})

	return r.loggingMiddleware(router)
}

// writeError sends a plain-text error response. A handler failure is
// reported to the client; it never crashes the serving process.
func (r *Routes) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)

	if _, err := fmt.Fprintf(w, "Error: %s", message); err != nil {
		r.log.WithError(err).Error("Failed to write error response")
	}
}

func (r *Routes) handlePlaylist(w http.ResponseWriter, req *http.Request) {
	channels, err := r.client.NormalizedChannels(req.Context(), false)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	opts := m3u.ParseOptions(req.URL.Query())

	w.Header().Set("Content-Type", "application/x-mpegURL; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="frndlytv.m3u8"`)
	w.WriteHeader(http.StatusOK)

	if err := m3u.Write(w, req.Host, channels, opts); err != nil {
		r.log.WithError(err).Error("Failed to write playlist response")
	}
}

func (r *Routes) handleEPG(w http.ResponseWriter, req *http.Request) {
	channels, err := r.client.NormalizedChannels(req.Context(), false)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	opts := m3u.Options{Gracenote: strings.ToLower(strings.TrimSpace(req.URL.Query().Get("gracenote")))}

	filtered := make([]*guide.Channel, 0, len(channels))
	for _, ch := range channels {
		if opts.Keep(ch) {
			filtered = append(filtered, ch)
		}
	}

	days := clampDays(req.URL.Query().Get("days"))

	ids := make([]string, 0, len(filtered))
	for _, ch := range filtered {
		ids = append(ids, ch.ID)
	}

	// Fetched fresh every call; guide freshness is what keeps
	// "now playing" correct.
	programs := make(map[string][]*guide.Program, len(filtered))

	if len(ids) > 0 {
		for channelID, records := range r.client.GuideWindow(req.Context(), ids, days) {
			for _, record := range records {
				prog, parseErr := guide.ParseProgram(record, channelID)
				if parseErr != nil {
					// Partial EPG beats no EPG.
					continue
				}

				programs[channelID] = append(programs[channelID], prog)
			}
		}
	}

	data, err := xmltv.Marshal(xmltv.Build(filtered, programs))
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="frndlytv-epg.xml"`)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		r.log.WithError(err).Error("Failed to write EPG response")
	}
}

// clampDays parses the days query parameter, clamped to 1..7 with a
// default of 3.
func clampDays(raw string) int {
	days := defaultEPGDays

	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			days = n
		}
	}

	if days < minEPGDays {
		days = minEPGDays
	}

	if days > maxEPGDays {
		days = maxEPGDays
	}

	return days
}

func (r *Routes) handlePlay(w http.ResponseWriter, req *http.Request) {
	slug := mux.Vars(req)["slug"]

	// The slug is the path segment before its first period
	// (play/{slug}.m3u8).
	if idx := strings.Index(slug, "."); idx >= 0 {
		slug = slug[:idx]
	}

	streamURL, err := r.client.Play(req.Context(), slug)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	http.Redirect(w, req, streamURL, http.StatusFound)
}

func (r *Routes) handleKeepAlive(w http.ResponseWriter, req *http.Request) {
	if err := r.client.KeepAlive(req.Context()); err != nil {
		r.log.WithError(err).Warn("Keep-alive failed")
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		r.log.WithError(err).Error("Failed to write keep-alive response")
	}
}

func (r *Routes) handleStatus(w http.ResponseWriter, req *http.Request) {
	host := req.Host
	if host == "" {
		host = fmt.Sprintf("localhost:%d", r.cfg.Port)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>frndlyd</title></head>
<body>
<h1>frndlyd</h1>
<p>Frndly TV is ready for IPTV clients.</p>

<h2>IPTV Source 1 (Gracenote EPG)</h2>
<p>Playlist: <a href="http://%[1]s/playlist.m3u8?gracenote=include">http://%[1]s/playlist.m3u8?gracenote=include</a><br>
EPG: leave blank, clients use Gracenote guide data.</p>

<h2>IPTV Source 2 (Full EPG with metadata)</h2>
<p>Playlist: <a href="http://%[1]s/playlist.m3u8?gracenote=exclude">http://%[1]s/playlist.m3u8?gracenote=exclude</a><br>
EPG: <a href="http://%[1]s/epg.xml?gracenote=exclude">http://%[1]s/epg.xml?gracenote=exclude</a></p>

<h2>Parameters</h2>
<ul>
<li><code>start_chno=N</code> - start channel numbering from N</li>
<li><code>include=id1,id2</code> - only include specific channels</li>
<li><code>exclude=id1,id2</code> - exclude specific channels</li>
<li><code>gracenote=include|exclude</code> - filter by Gracenote availability</li>
<li><code>days=N</code> - EPG days to include (1-7, default 3)</li>
</ul>
</body>
</html>
`, host)

	if _, err := w.Write([]byte(page)); err != nil {
		r.log.WithError(err).Error("Failed to write status response")
	}
}

func (r *Routes) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
			"remote": req.RemoteAddr,
		}).Info("HTTP request")

		next.ServeHTTP(w, req)
	})
}
