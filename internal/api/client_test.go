package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frndly/frndlyd/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// addAuthRoutes wires working token and signin endpoints so forced
// re-logins succeed.
func addAuthRoutes(mux *http.ServeMux, loginCount *atomic.Int32) {
	mux.HandleFunc("/service/api/v1/get/token", func(w http.ResponseWriter, r *http.Request) {
		if loginCount != nil {
			loginCount.Add(1)
		}

		fmt.Fprint(w, `{"response": {"sessionId": "sess-1"}}`)
	})

	mux.HandleFunc("/service/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": true}`)
	})
}

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()

	creds := session.Credentials{Username: "user@example.com", Password: "hunter2"}
	sess := session.NewManager(testLogger(), creds, "", 5*time.Hour, ts.URL)

	endpoints := Endpoints{
		API:     ts.URL,
		Guide:   ts.URL,
		LiveMap: ts.URL + "/app.json",
	}

	return NewClient(testLogger(), sess, endpoints, 5*time.Minute)
}

func channelPayload(id, title, banner string) string {
	return fmt.Sprintf(`{"id": %s, "display": {"title": %q}, "metadata": {"isChannelBanner": %q}}`, id, title, banner)
}

func TestChannels_FiltersBannersAndCaches(t *testing.T) {
	var fetches atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		require.Equal(t, "0", r.URL.Query().Get("skip_tabs"))

		fmt.Fprintf(w, `{"response": {"data": [%s, %s, %s]}}`,
			channelPayload("1", "Channel One", "false"),
			channelPayload("2", "Promo Banner", "TRUE"),
			channelPayload("3", "Channel Three", ""))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	channels, err := client.Channels(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	require.Equal(t, int32(1), fetches.Load())

	// Second call is served from the cache.
	_, err = client.Channels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, int32(1), fetches.Load())

	// forceRefresh bypasses it.
	_, err = client.Channels(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, int32(2), fetches.Load())
}

func TestChannels_EmptyAfterFilteringIsRegionalError(t *testing.T) {
	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`, channelPayload("2", "Promo", "true"))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	_, err := client.Channels(context.Background(), false)
	require.Error(t, err)

	var notAvailable *NotAvailableError
	require.ErrorAs(t, err, &notAvailable)
	require.Contains(t, notAvailable.Message, "region")
}

func TestRequest_404IsTerminal(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error": {"code": 404, "message": "channel not available in your region"}}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	_, err := client.Channels(context.Background(), false)

	var notAvailable *NotAvailableError
	require.ErrorAs(t, err, &notAvailable)
	require.Equal(t, "channel not available in your region", notAvailable.Message)
	require.Equal(t, int32(1), calls.Load(), "404 must not be retried")
}

func TestRequest_ErrorEnvelopeForcesRelogin(t *testing.T) {
	var calls, logins atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, &logins)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"error": {"code": 401, "message": "session expired"}}`)

			return
		}

		fmt.Fprintf(w, `{"response": {"data": [%s]}}`, channelPayload("1", "One", "false"))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	channels, err := client.Channels(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, int32(2), calls.Load())
	require.GreaterOrEqual(t, logins.Load(), int32(1), "bad envelope must force a re-login")
}

func TestRequest_TransportExhaustion(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `not json at all`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	_, err := client.Channels(context.Background(), false)
	require.Error(t, err)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, int32(3), calls.Load(), "transport failures retry 3 attempts total")
}

func guideRow(channelID string, programs ...string) string {
	joined := ""

	for i, p := range programs {
		if i > 0 {
			joined += ","
		}

		joined += p
	}

	return fmt.Sprintf(`{"channelId": %s, "programs": [%s]}`, channelID, joined)
}

func programPayload(title string, startMs, endMs int64) string {
	return fmt.Sprintf(`{
		"display": {
			"title": %q,
			"markers": {"startTime": {"value": %d}, "endTime": {"value": %d}}
		},
		"metadata": {},
		"target": {"path": "channel/live/%s"}
	}`, title, startMs, endMs, title)
}

func TestGuide_PartialDayFailure(t *testing.T) {
	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/static/tvguide", func(w http.ResponseWriter, r *http.Request) {
		// Only the first day's window succeeds; later cursors fail.
		if r.URL.Query().Get("start_time") != "100000" {
			fmt.Fprint(w, `{"error": {"code": 404, "message": "no data"}}`)

			return
		}

		fmt.Fprintf(w, `{"response": {"data": [%s]}}`,
			guideRow("7", programPayload("Morning Show", 0, 3600000)))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	programs := client.Guide(context.Background(), []string{"7"}, 100, 2)
	require.Len(t, programs["7"], 1, "failed day is absent, partial results returned")
}

func TestGuide_ConcatenatesAcrossDays(t *testing.T) {
	var day atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/static/tvguide", func(w http.ResponseWriter, r *http.Request) {
		n := day.Add(1)
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`,
			guideRow("7", programPayload(fmt.Sprintf("Show %d", n), 0, 3600000)))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	programs := client.Guide(context.Background(), []string{"7"}, 100, 3)
	require.Len(t, programs["7"], 3)
}

func TestCurrentAndNext(t *testing.T) {
	now := time.Now().Unix()

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/static/tvguide", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`,
			guideRow("7",
				programPayload("Earlier", (now-7200)*1000, (now-3600)*1000),
				programPayload("Now Playing", (now-600)*1000, (now+600)*1000),
				programPayload("Up Next", (now+600)*1000, (now+1800)*1000)))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	current, next := client.CurrentAndNext(context.Background(), []string{"7"})
	require.Len(t, current, 1)
	require.Equal(t, "Now Playing", current["7"].Title)
	require.Equal(t, "Up Next", next["7"].Title)
}

func TestLiveMap(t *testing.T) {
	var serveMap atomic.Bool

	serveMap.Store(true)

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/app.json", func(w http.ResponseWriter, r *http.Request) {
		if !serveMap.Load() {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		fmt.Fprint(w, `{"188": {"slug": "hallmark", "chno": 520, "gracenote": "58646"}}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	mapping := client.LiveMap(context.Background())
	require.Len(t, mapping, 1)
	require.Equal(t, "hallmark", mapping["188"].Slug)

	// On failure the last known value is served.
	serveMap.Store(false)

	mapping = client.LiveMap(context.Background())
	require.Len(t, mapping, 1)
}

func TestKeepAlive_ReloginWhenExpired(t *testing.T) {
	var logins atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, &logins)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	require.NoError(t, client.KeepAlive(context.Background()))
	require.Equal(t, int32(1), logins.Load())
}

func TestKeepAlive_RefreshesChannelsWhenValid(t *testing.T) {
	var fetches atomic.Int32

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`, channelPayload("1", "One", "false"))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	_, err := client.session.Login(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.KeepAlive(context.Background()))
	require.NoError(t, client.KeepAlive(context.Background()))

	// Each keep-alive forces a refresh despite the cache TTL.
	require.Equal(t, int32(2), fetches.Load())
}

func TestNormalizedChannels(t *testing.T) {
	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`, channelPayload("188", "Hallmark Channel", "false"))
	})
	mux.HandleFunc("/app.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"188": {"slug": "hallmark", "chno": 520, "gracenote": "58646"}}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	channels, err := client.NormalizedChannels(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, "hallmark-188", channels[0].Slug)
	require.Equal(t, 520, channels[0].Number)
	require.Equal(t, "58646", channels[0].GracenoteID)
}

func TestChannelsDetailed(t *testing.T) {
	now := time.Now().Unix()

	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/tvguide/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`, channelPayload("7", "Seven", "false"))
	})
	mux.HandleFunc("/app.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/service/api/v1/static/tvguide", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s]}}`,
			guideRow("7",
				programPayload("Now Playing", (now-600)*1000, (now+600)*1000),
				programPayload("Up Next", (now+600)*1000, (now+1800)*1000)))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	detailed, err := client.ChannelsDetailed(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, detailed, 1)
	require.Equal(t, "Seven", detailed[0].Name)
	require.NotNil(t, detailed[0].Current)
	require.Equal(t, "Now Playing", detailed[0].Current.Title)
	require.NotNil(t, detailed[0].Next)
	require.Equal(t, "Up Next", detailed[0].Next.Title)
}

func TestProgramsForChannel(t *testing.T) {
	mux := http.NewServeMux()
	addAuthRoutes(mux, nil)
	mux.HandleFunc("/service/api/v1/static/tvguide", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response": {"data": [%s, %s]}}`,
			guideRow("7", programPayload("A", 0, 3600000)),
			guideRow("8", programPayload("B", 0, 3600000)))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(t, ts)

	programs := client.ProgramsForChannel(context.Background(), "7", 1)
	require.Len(t, programs, 1)
	require.Equal(t, "A", programs[0].Title)
}
