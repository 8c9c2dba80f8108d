package polskieradio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiScheduleHTML = `
<div class="scheduleViewContainer"><ul class="scheduleView">
  <li class='programmeLi'><a onclick="showProgrammeDetails('1','2','00:00','2026-01-06')"><span class="sTime">00:00</span><span class="desc">A</span></a></li>
  <li class='programmeLi'><a onclick="showProgrammeDetails('1','3','01:00','2026-01-06')"><span class="sTime">01:00</span><span class="desc">B</span></a></li>
</ul></div>
<div class="scheduleViewContainer"><ul class="scheduleView">
  <li class='programmeLi'><a onclick="showProgrammeDetails('9','8','00:00','2026-01-06')"><span class="sTime">00:00</span><span class="desc">C</span></a></li>
</ul></div>`

const popupHTML = `
<div class="popupScheduleContent">
  <span id="programmeDetails_lblProgrammeStartTime">04:05</span>
  <span id="programmeDetails_lblProgrammeTitle">Tak to bywało</span>
  <span id="programmeDetails_lblProgrammeLead">Wspomnienia sprzed lat.</span>
  <span id="programmeDetails_lblProgrammeDescription"><p>s</p></span>
  <a id="programmeDetails_hypProgrammeWebsite" href="/7/3727"><span>Strona audycji</span></a>
</div>`

func TestDetailsRef(t *testing.T) {
	assert.Equal(t, "1307315|10548|00:00|2026-01-06",
		detailsRef("showProgrammeDetails('1307315','10548','00:00','2026-01-06')"))
	assert.Empty(t, detailsRef("return false;"))
}

func TestParseMultiSchedule(t *testing.T) {
	doc, err := web.ParseHTML([]byte(multiScheduleHTML))
	require.NoError(t, err)

	lists, err := parseMultiSchedule(doc)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	require.Len(t, lists[0], 2)
	assert.Equal(t, "A", lists[0][0].Title)
	assert.Equal(t, "00:00", lists[0][0].Start)
	assert.Equal(t, "9|8|00:00|2026-01-06", lists[1][0].DetailsRef)
}

func TestParsePopupDropsPlaceholders(t *testing.T) {
	doc, err := web.ParseHTML([]byte(popupHTML))
	require.NoError(t, err)

	popup := parsePopup(doc)
	assert.Equal(t, "04:05", popup.Start)
	assert.Equal(t, "Tak to bywało", popup.Title)
	assert.Empty(t, popup.Description)
	assert.Equal(t, "/7/3727", popup.Href)
	assert.Equal(t, "Wspomnienia sprzed lat.", popup.text())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(server.URL, web.NewClient(logger, web.WithRetryDelay(0)), logger)
}

func TestFetchSharesDayPage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, schedulePath, r.URL.Path)
		assert.Equal(t, "2026-01-06", r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, multiScheduleHTML)
	})
	day := domain.SingleDay("2026-01-06")

	jedynka, err := client.Fetch(context.Background(), domain.FetchRequest{Source: stations[0], Range: day})
	require.NoError(t, err)
	require.Len(t, jedynka.Items, 2)
	assert.Equal(t, "Jedynka", jedynka.Items[0].SourceName)
	assert.Equal(t, domain.Date("2026-01-06"), jedynka.Items[0].Day)

	dwojka, err := client.Fetch(context.Background(), domain.FetchRequest{Source: stations[1], Range: day})
	require.NoError(t, err)
	require.Len(t, dwojka.Items, 1)
	assert.Equal(t, "C", dwojka.Items[0].Title)
	assert.Equal(t, domain.SourceID("dwojka"), dwojka.Items[0].SourceID)

	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, multiScheduleHTML)
	})
	day := domain.SingleDay("2026-01-06")

	_, err := client.Fetch(context.Background(), domain.FetchRequest{
		Source: domain.Source{ID: "radio-maryja"}, Range: day,
	})
	assert.ErrorIs(t, err, domain.ErrPermanentProvider)
	assert.ErrorIs(t, err, domain.ErrUnknownSource)

	// the page only lists two stations
	_, err = client.Fetch(context.Background(), domain.FetchRequest{Source: stations[2], Range: day})
	assert.ErrorIs(t, err, domain.ErrParse)

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>Serwis niedostępny</body></html>")
	})
	_, err = broken.Fetch(context.Background(), domain.FetchRequest{Source: stations[0], Range: day})
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, detailsPath, r.URL.Path)
		assert.Equal(t, "1307315", r.URL.Query().Get("programmeId"))
		io.WriteString(w, popupHTML)
	})

	text, err := client.Details(context.Background(), "1307315|10548|00:00|2026-01-06")
	require.NoError(t, err)
	assert.Equal(t, "Wspomnienia sprzed lat.", text)

	_, err = client.Details(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrPermanentProvider)
}

func TestSourcesIsACopy(t *testing.T) {
	client := New("http://127.0.0.1:0", web.NewClient(nil), nil)
	sources, err := client.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 5)
	sources[0].Name = "changed"
	assert.Equal(t, "Jedynka", stations[0].Name)
}
