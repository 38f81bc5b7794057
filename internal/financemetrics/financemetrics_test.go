package financemetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/bursar/internal/config"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const school = snowflake.ID(7001)

func seededSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	h.SeedFeeStructure(t, school, "P5", "tuition", 250000, 2025, nil, nil)

	var first invoicedomain.Invoice
	for i := 0; i < 2; i++ {
		student := h.SeedStudent(t, school, "P5", studentdomain.BoardingStatusDay)
		inv, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
			StudentID: student.ID.String(),
			Term:      1,
			Year:      2025,
		})
		require.NoError(t, err)
		if i == 0 {
			first = inv
		}
	}
	_, err := h.MobileMoney.Initiate(ctx, mobilemoneydomain.InitiateRequest{
		PhoneNumber: "256772000001",
		Amount:      40000,
		Provider:    "mtn",
		EntityType:  string(mobilemoneydomain.EntityTypeInvoice),
		EntityID:    first.ID.String(),
	})
	require.NoError(t, err)

	return NewSnapshot(h.DB, h.InvoiceRepo, h.MobileMoneyRepo)
}

func TestSnapshotRefresh(t *testing.T) {
	snap := seededSnapshot(t)
	require.NoError(t, snap.Refresh(context.Background()))

	assert.Equal(t, float64(500000), testutil.ToFloat64(snap.outstanding.WithLabelValues(school.String())))
	assert.Equal(t, float64(2), testutil.ToFloat64(snap.debtors.WithLabelValues(school.String())))
	assert.Equal(t, float64(1), testutil.ToFloat64(snap.pendingCount.WithLabelValues("mtn")))
	assert.Equal(t, float64(40000), testutil.ToFloat64(snap.pendingAmount.WithLabelValues("mtn")))
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	snap := seededSnapshot(t)
	require.NoError(t, snap.Refresh(context.Background()))

	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(decoded))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "token-1", map[string]string{"environment": "test"})
	fixed := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	pusher.now = func() time.Time { return fixed }
	require.NoError(t, pusher.Push(context.Background(), snap.Registry()))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer token-1", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 4)

	found := false
	for _, ts := range got.Timeseries {
		labels := map[string]string{}
		for _, l := range ts.Labels {
			labels[l.Name] = l.Value
		}
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, fixed.UnixMilli(), ts.Samples[0].Timestamp)
		if labels["__name__"] == "bursar_finance_outstanding_amount" {
			found = true
			assert.Equal(t, school.String(), labels["school_id"])
			assert.Equal(t, "test", labels["environment"])
			assert.Equal(t, float64(500000), ts.Samples[0].Value)
		}
	}
	assert.True(t, found)
}

func TestRemoteWritePusherReportsRejectedWrite(t *testing.T) {
	snap := seededSnapshot(t)
	require.NoError(t, snap.Refresh(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "", nil).Push(context.Background(), snap.Registry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestPushgatewayPusherPutsGroup(t *testing.T) {
	snap := seededSnapshot(t)
	require.NoError(t, snap.Refresh(context.Background()))

	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "bursar", map[string]string{"environment": "test", "": "skip"})
	require.NoError(t, pusher.Push(context.Background(), snap.Registry()))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/bursar/environment/test", path)
}

func TestNewPusherSelectsExporter(t *testing.T) {
	cases := []struct {
		name  string
		stats config.FinanceMetricsConfig
		want  any
	}{
		{name: "disabled", stats: config.FinanceMetricsConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://x/api/v1/write"}},
		{name: "missing exporter", stats: config.FinanceMetricsConfig{Enabled: true, Endpoint: "http://x"}},
		{name: "missing endpoint", stats: config.FinanceMetricsConfig{Enabled: true, Exporter: ExporterPushgateway}},
		{name: "bad url", stats: config.FinanceMetricsConfig{Enabled: true, Exporter: ExporterRemoteWrite, Endpoint: "not a url"}},
		{name: "unknown exporter", stats: config.FinanceMetricsConfig{Enabled: true, Exporter: "statsd", Endpoint: "http://x"}},
		{name: "remote write", stats: config.FinanceMetricsConfig{Enabled: true, Exporter: ExporterRemoteWrite, Endpoint: "http://x/api/v1/write"}, want: &RemoteWritePusher{}},
		{name: "pushgateway", stats: config.FinanceMetricsConfig{Enabled: true, Exporter: ExporterPushgateway, Endpoint: "http://x"}, want: &PushgatewayPusher{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewPusher(config.Config{AppName: "bursar", FinanceStats: tc.stats}, zap.NewNop())
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.IsType(t, tc.want, got)
		})
	}
}

func TestRemoteWriteSeriesSortsAndPrefersMetricLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "g"}, []string{"environment", "school_id"})
	reg.MustRegister(gauge)
	gauge.WithLabelValues("override", "1").Set(3)
	families, err := reg.Gather()
	require.NoError(t, err)

	p := NewRemoteWritePusher("http://x", "", map[string]string{"environment": "prod", "region": "ug", "": "x"})
	series := p.series(families, 10)
	require.Len(t, series, 1)

	var names []string
	for _, l := range series[0].Labels {
		names = append(names, l.Name)
		if l.Name == "environment" {
			assert.Equal(t, "override", l.Value)
		}
	}
	assert.Equal(t, []string{"__name__", "environment", "region", "school_id"}, names)
}
