package coordinator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malosaaa/p2000mon/internal/config"
	"github.com/malosaaa/p2000mon/internal/metrics"
	"github.com/malosaaa/p2000mon/internal/models"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

const pageFull = `<div id="calls">
	<div class="call" latitude="52.3702" longitude="4.8952">
		<h2><a><i class="fa fa-ambulance"></i> <b>A1</b></a>
			<span title="zondag 6 april 2025 14:55:01">3 minuten geleden</span></h2>
		<pre>A1 AMBU 13108 Hoofdstraat AMSTERDAM 84352</pre>
		<span><p>Capcodes: 1420059</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Amsterdam</span></a>
			<a><span>1011AB</span></a>
			<span>Hoofdstraat</span>
		</p></span>
	</div>
	<div class="call">
		<h2><a><i class="fa fa-fire"></i> <b>P1</b></a>
			<span title="zondag 6 april 2025 14:41:12">17 minuten geleden</span></h2>
		<pre>P1 BDH-02 BR gebouw (brandgerucht) Van der Waalsweg AMSTELVEEN</pre>
		<span><p>Capcodes: 0320101</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Amstelveen</span></a>
		</p></span>
	</div>
	<div class="call">
		<h2><a><b>A2</b></a>
			<span title="zondag 6 april 2025 13:58:40">een uur geleden</span></h2>
		<pre>A2 Politie Amsterdam Noodhulp Ouderkerkerlaan OUDER-AMSTEL</pre>
		<span><p>Capcodes: 1500021</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Ouder-Amstel</span></a>
		</p></span>
	</div>
</div>`

const pageOlderOnly = `<div id="calls">
	<div class="call">
		<h2><a><b>A2</b></a>
			<span title="zondag 6 april 2025 13:58:40">een uur geleden</span></h2>
		<pre>A2 Politie Amsterdam Noodhulp Ouderkerkerlaan OUDER-AMSTEL</pre>
		<span><p>Capcodes: 1500021</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Ouder-Amstel</span></a>
		</p></span>
	</div>
</div>`

const pagePartial = `<div id="calls">
	<div class="call">
		<h2><a><b>A1</b></a>
			<span title="zondag 6 april 2025 14:55:01">3 minuten geleden</span></h2>
		<pre>A1 AMBU 13108 Hoofdstraat AMSTERDAM 84352</pre>
		<span><p>Capcodes: 1420059</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Amsterdam</span></a>
		</p></span>
	</div>
	<div class="call">
		<h2><a><b>P1</b></a></h2>
		<span><p>caps</p><p>
			<a><span>Amsterdam-Amstelland</span></a>
			<a><span>Amstelveen</span></a>
		</p></span>
	</div>
</div>`

// flakyServer serves a switchable page so tests can walk a coordinator
// through failure and recovery.
type flakyServer struct {
	mu     sync.Mutex
	status int
	body   string
}

func (f *flakyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status, body := f.status, f.body
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	io.WriteString(w, body)
}

func (f *flakyServer) set(status int, body string) {
	f.mu.Lock()
	f.status, f.body = status, body
	f.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testInstance(filter models.FilterConfig) config.Instance {
	return config.Instance{
		Name:         "amsterdam",
		RegionPath:   "112-meldingen/amsterdam-amstelland",
		ScanInterval: config.DefaultScanInterval,
		Sensors:      models.DefaultEnabledSensors,
		Filter:       filter,
	}
}

func newTestCoordinator(t *testing.T, url string, filter models.FilterConfig) (*Coordinator, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	fetcher := scrape.NewFetcher(url, time.Second)
	return New(testInstance(filter), fetcher, m, quietLogger()), m
}

func TestPollPublishesNewestMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pageFull})
	defer srv.Close()

	c, _ := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))

	st := c.State()
	require.NotNil(t, st.LastMessage)
	assert.Equal(t, "A1", st.LastMessage.PriorityCode)
	assert.Equal(t, models.ServiceAmbulance, st.LastMessage.ServiceType)
	assert.Equal(t, "Amsterdam", st.LastMessage.Location)
	assert.True(t, st.MatchesFilter)
	assert.Equal(t, models.UpdateOK, st.LastUpdateStatus)
	assert.Equal(t, models.PhasePublished, st.Phase)
	assert.Zero(t, st.ConsecutiveErrors)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastUpdateAttempt)
	require.NotNil(t, st.LastSuccessfulUpdate)
}

func TestPollAppliesFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pageFull})
	defer srv.Close()

	t.Run("matching older record wins", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCoordinator(t, srv.URL, models.NewFilterConfig(models.ServiceFire))
		require.True(t, c.Poll(context.Background()))

		st := c.State()
		require.NotNil(t, st.LastMessage)
		assert.Equal(t, "P1", st.LastMessage.PriorityCode)
		assert.Equal(t, models.ServiceFire, st.LastMessage.ServiceType)
		assert.True(t, st.MatchesFilter)
	})

	t.Run("no match falls back to newest", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestCoordinator(t, srv.URL, models.NewFilterConfig(models.ServiceOther))
		require.True(t, c.Poll(context.Background()))

		st := c.State()
		require.NotNil(t, st.LastMessage)
		assert.Equal(t, "A1", st.LastMessage.PriorityCode)
		assert.False(t, st.MatchesFilter)
	})
}

func TestPollFailureKeepsLastData(t *testing.T) {
	t.Parallel()

	flaky := &flakyServer{body: pageFull}
	srv := httptest.NewServer(flaky)
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))
	firstSuccess := c.State().LastSuccessfulUpdate

	flaky.set(http.StatusInternalServerError, "")
	for want := 1; want <= 3; want++ {
		require.True(t, c.Poll(context.Background()))
		st := c.State()
		assert.Equal(t, want, st.ConsecutiveErrors)
		assert.Equal(t, models.UpdateError, st.LastUpdateStatus)
		assert.Equal(t, models.PhaseIdle, st.Phase)
		assert.NotEmpty(t, st.LastError)

		// Stale data is retained alongside the error signal.
		require.NotNil(t, st.LastMessage)
		assert.Equal(t, "A1", st.LastMessage.PriorityCode)
		assert.Equal(t, firstSuccess, st.LastSuccessfulUpdate)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PollErrors.WithLabelValues("amsterdam", "http_status")))

	// Recovery resets the failure run.
	flaky.set(0, pageFull)
	require.True(t, c.Poll(context.Background()))
	st := c.State()
	assert.Zero(t, st.ConsecutiveErrors)
	assert.Equal(t, models.UpdateOK, st.LastUpdateStatus)
	assert.Empty(t, st.LastError)
	assert.NotEqual(t, firstSuccess, st.LastSuccessfulUpdate)
}

func TestPollStructureChanged(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: "<html><body><h1>Onderhoud</h1></body></html>"})
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))
	st := c.State()
	assert.Equal(t, models.UpdateError, st.LastUpdateStatus)
	assert.Contains(t, st.LastError, "structure changed")
	assert.Nil(t, st.LastMessage)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollErrors.WithLabelValues("amsterdam", "structure_changed")))
}

func TestPollEmptyPageBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: "  \n "})
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))

	st := c.State()
	assert.Equal(t, models.UpdateError, st.LastUpdateStatus)
	assert.Equal(t, 1, st.ConsecutiveErrors)
	require.NotNil(t, st.LastUpdateAttempt)
	assert.Contains(t, st.LastError, "empty body")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollErrors.WithLabelValues("amsterdam", "empty_body")))
}

func TestPollCountsNewMessagesOnce(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pageFull})
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))
	require.True(t, c.Poll(context.Background()))

	// The page did not change between polls, so only the first publish counts.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NewMessages.WithLabelValues("amsterdam", "Ambulance")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("amsterdam", "ok")))
}

func TestPollIgnoresOlderSelection(t *testing.T) {
	t.Parallel()

	flaky := &flakyServer{body: pageFull}
	srv := httptest.NewServer(flaky)
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())
	require.True(t, c.Poll(context.Background()))

	// The page now only shows an older message, e.g. after a reorder. It is
	// published but not counted as new activity.
	flaky.set(0, pageOlderOnly)
	require.True(t, c.Poll(context.Background()))

	st := c.State()
	require.NotNil(t, st.LastMessage)
	assert.Equal(t, "A2", st.LastMessage.PriorityCode)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NewMessages.WithLabelValues("amsterdam", "Police")))
}

func TestPollRecordsSkippedBlocks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pagePartial})
	defer srv.Close()

	c, m := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	require.True(t, c.Poll(context.Background()))

	st := c.State()
	assert.Equal(t, models.UpdateOK, st.LastUpdateStatus)
	require.NotNil(t, st.LastMessage)
	assert.Equal(t, "A1", st.LastMessage.PriorityCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksSkipped.WithLabelValues("amsterdam")))
}

func TestPollSkipsWhenInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, pageFull)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	fetcher := scrape.NewFetcher(srv.URL, 5*time.Second)
	c := New(testInstance(models.NewFilterConfig()), fetcher, m, quietLogger())

	done := make(chan bool, 1)
	go func() { done <- c.Poll(context.Background()) }()

	// Wait until the first poll is inside its fetch.
	require.Eventually(t, func() bool {
		return c.State().Phase == models.PhaseFetching
	}, 2*time.Second, 10*time.Millisecond)

	// A second poll is skipped, not queued.
	assert.False(t, c.Poll(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("amsterdam", "skipped")))

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, models.PhasePublished, c.State().Phase)
}

func TestPollAsync(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, pageFull)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	fetcher := scrape.NewFetcher(srv.URL, 5*time.Second)
	c := New(testInstance(models.NewFilterConfig()), fetcher, m, quietLogger())

	require.True(t, c.PollAsync(context.Background()))
	require.Eventually(t, func() bool {
		return c.State().Phase == models.PhaseFetching
	}, 2*time.Second, 10*time.Millisecond)

	// Both entry points refuse while the background poll runs.
	assert.False(t, c.PollAsync(context.Background()))
	assert.False(t, c.Poll(context.Background()))

	close(release)
	require.Eventually(t, func() bool {
		return c.State().Phase == models.PhasePublished
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishedProjection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pageFull})
	defer srv.Close()

	c, _ := newTestCoordinator(t, srv.URL, models.NewFilterConfig())

	before := c.Published()
	assert.Equal(t, "amsterdam", before.Instance)
	assert.Empty(t, before.State)
	assert.Nil(t, before.Attributes)
	assert.Equal(t, models.PhaseIdle, before.Phase)

	require.True(t, c.Poll(context.Background()))

	after := c.Published()
	assert.Equal(t, "A1", after.State)
	assert.Equal(t, models.UpdateOK, after.LastUpdateStatus)
	assert.True(t, after.MatchesFilter)
	assert.Equal(t, "Amsterdam", after.Attributes[models.SensorLocation])
	assert.NotContains(t, after.Attributes, models.SensorPriorityCode)
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&flakyServer{body: pageFull})
	defer srv.Close()

	c, _ := newTestCoordinator(t, srv.URL, models.NewFilterConfig(models.ServiceFire))
	require.True(t, c.Poll(context.Background()))

	d := c.Diagnose()
	assert.Equal(t, "amsterdam", d.Instance)
	assert.Equal(t, srv.URL+"/112-meldingen/amsterdam-amstelland/", d.URL)
	assert.Equal(t, []models.ServiceType{models.ServiceFire}, d.Filters)
	require.NotNil(t, d.LastParse)
	assert.Equal(t, 3, d.LastParse.Blocks)
	assert.Equal(t, 3, d.LastParse.Records)
	assert.Zero(t, d.LastParse.Skipped)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	t.Run("valid region", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(&flakyServer{body: pageFull})
		defer srv.Close()

		rec, err := Probe(context.Background(), scrape.NewFetcher(srv.URL, time.Second), "utrecht")
		require.NoError(t, err)
		assert.Equal(t, "A1", rec.PriorityCode)
		assert.Equal(t, models.ServiceAmbulance, rec.ServiceType)
	})

	t.Run("unknown region", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(&flakyServer{status: http.StatusNotFound})
		defer srv.Close()

		_, err := Probe(context.Background(), scrape.NewFetcher(srv.URL, time.Second), "nergenshuizen")
		var ferr *scrape.FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, scrape.KindHTTPStatus, ferr.Kind)
		assert.Equal(t, http.StatusNotFound, ferr.Status)
	})

	t.Run("broken page", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(&flakyServer{body: "<p>nope</p>"})
		defer srv.Close()

		_, err := Probe(context.Background(), scrape.NewFetcher(srv.URL, time.Second), "utrecht")
		assert.ErrorIs(t, err, scrape.ErrStructureChanged)
	})
}
