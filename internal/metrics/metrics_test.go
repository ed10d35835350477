package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddIngested("price", 3)
	m.AddIngested("price", 2)
	m.AddIngested("social", 0)
	m.IncSourceError("reddit")
	m.IncMismatch("AAPL")
	m.AddWatermarkCommits("finnhub-company", 2)
	m.AddPruned("news_items", 10)
	m.AddSkipped("rss", 1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.ItemsIngested.WithLabelValues("price")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ItemsIngested.WithLabelValues("social")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("reddit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceMismatches.WithLabelValues("AAPL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WatermarkCommits.WithLabelValues("finnhub-company")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RowsPruned.WithLabelValues("news_items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsSkipped.WithLabelValues("rss")))
}

func TestObserveCycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCycle(2 * time.Second)
	m.ObserveCycle(3 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.AddIngested("price", 1)
		m.IncSourceError("x")
		m.IncMismatch("AAPL")
		m.ObserveCycle(time.Second)
		m.AddWatermarkCommits("x", 1)
		m.AddPruned("price_data", 1)
		m.AddSkipped("x", 1)
	})
	assert.NotNil(t, m.Handler())
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.AddIngested("macro_news", 4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `marketfeed_items_ingested_total{kind="macro_news"} 4`), text)
	assert.Contains(t, text, "go_goroutines")
}
