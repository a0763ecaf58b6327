package pipeline

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/malbeclabs/eventlens/pkg/rowset"
	"github.com/stretchr/testify/require"
)

func TestPipeline_SanitizeSeriesKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"facebook ads":          "facebook_ads",
		"  googleadwords_int  ": "googleadwords_int",
		"a--b__c":               "a_b_c",
		"!!!":                   "series",
		"":                      "series",
		strings.Repeat("x", 50): strings.Repeat("x", 40),
	}
	for in, want := range tests {
		require.Equal(t, want, sanitizeSeriesKey(in), in)
	}
}

func TestPipeline_BuildAnomalyVisualization(t *testing.T) {
	t.Parallel()

	rows := rowset.New(nil, []rowset.Row{
		{"hr": int64(10), "media_source": "tiktok", "clicks": int64(50), "baseline_6h": 45.5, "is_anomaly": "false"},
		{"hr": "9", "media_source": "facebook ads", "clicks": "1,200", "baseline_6h": "300", "is_anomaly": "Yes"},
		{"hr": 9.0, "media_source": "tiktok", "clicks": -4, "baseline_6h": 10, "is_anomaly": 0},
		{"hr": int64(10), "media_source": "facebook ads", "clicks": math.NaN(), "baseline_6h": nil, "is_anomaly": "t"},
		{"hr": "", "media_source": "tiktok", "clicks": 7, "is_anomaly": "false"},
		{"hr": int64(2), "clicks": 3, "is_anomaly": false},
	})

	viz := BuildAnomalyVisualization(rows)
	require.Equal(t, "AnomalyVisualizationDashboard", viz.Component)
	require.Len(t, viz.Props.Rows, 6)

	require.Equal(t, []SeriesDef{
		{Key: "Unknown", Name: "Unknown"},
		{Key: "facebook_ads", Name: "facebook ads"},
		{Key: "tiktok", Name: "tiktok"},
	}, viz.Props.ChartConfig.Series)
	require.Equal(t, 400, viz.Props.ChartConfig.Height)

	require.Equal(t, []map[string]any{
		{"hour": "2", "Unknown": 3.0},
		{"hour": "9", "facebook_ads": 1200.0, "tiktok": 0.0},
		{"hour": "10", "tiktok": 50.0, "facebook_ads": 0.0},
	}, viz.Props.ChartData)

	require.Equal(t, []Anomaly{
		{Name: "facebook ads", AnomalyType: "click_spike", EventHour: "9", Clicks: 1200, AvgClicks: 300},
		{Name: "facebook ads", AnomalyType: "click_spike", EventHour: "10", Clicks: 0, AvgClicks: 0},
	}, viz.Props.Anomalies)

	require.Equal(t, AnomalyStats{Total: 2, SpikeCount: 2, MaxDeviation: 900}, viz.Props.Stats)

	_, err := viz.JSON()
	require.NoError(t, err)
}

func TestPipeline_BuildAnomalyVisualization_Empty(t *testing.T) {
	t.Parallel()

	viz := BuildAnomalyVisualization(nil)
	require.Empty(t, viz.Props.ChartData)
	require.Empty(t, viz.Props.Anomalies)
	require.Equal(t, "No hourly click data was found for this range.", viz.Summary())

	data, err := json.Marshal(viz.Props)
	require.NoError(t, err)
	require.Contains(t, string(data), `"chartData":[]`)
	require.Contains(t, string(data), `"anomalies":[]`)
	require.Contains(t, string(data), `"rows":[]`)
}

func TestPipeline_AnomalySummary(t *testing.T) {
	t.Parallel()

	quiet := BuildAnomalyVisualization(rowset.New(nil, []rowset.Row{
		{"hr": int64(1), "media_source": "a", "clicks": int64(5), "baseline_6h": 5.0, "is_anomaly": false},
		{"hr": int64(2), "media_source": "a", "clicks": int64(6), "baseline_6h": 5.0, "is_anomaly": false},
	}))
	require.Equal(t, "No anomalies were detected across 1 media source in 2 hours.", quiet.Summary())

	loud := BuildAnomalyVisualization(rowset.New(nil, []rowset.Row{
		{"hr": int64(1), "media_source": "a", "clicks": int64(50), "baseline_6h": 40.0, "is_anomaly": true},
		{"hr": int64(2), "media_source": "b", "clicks": int64(90), "baseline_6h": 20.5, "is_anomaly": true},
	}))
	summary := loud.Summary()
	require.Equal(t, "Detected 2 click anomalies across 2 media sources. The largest was b at hour 2 with 90 clicks against a 6 hour average of 20.5.", summary)
	require.NotContains(t, summary, "|")
}
