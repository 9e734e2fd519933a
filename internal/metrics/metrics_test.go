package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Outcomes.WithLabelValues("amazon", "cart_added").Inc()
	m.Outcomes.WithLabelValues("amazon", "cart_added").Inc()
	m.UnitsReserved.Add(4)
	m.Paused.Set(1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("amazon", "cart_added")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.UnitsReserved))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `bfmr_bot_outcomes_total{action="cart_added",retailer="amazon"} 2`))
	require.True(t, strings.Contains(string(body), "bfmr_bot_paused 1"))
}

func TestNew_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
