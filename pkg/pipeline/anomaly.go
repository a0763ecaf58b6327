package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/malbeclabs/eventlens/pkg/rowset"
)

const (
	anomalyComponent  = "AnomalyVisualizationDashboard"
	anomalyTitle      = "Click anomalies per hour"
	anomalyTypeSpike  = "click_spike"
	anomalyTypeDrop   = "click_drop"
	anomalyHourCol    = "hr"
	anomalySeriesCol  = "media_source"
	anomalyValueCol   = "clicks"
	anomalyBaseCol    = "baseline_6h"
	anomalyFlagCol    = "is_anomaly"
	chartHeight       = 400
	maxSeriesKeyLen   = 40
	defaultSeriesKey  = "series"
	unknownSeriesName = "Unknown"
)

var (
	seriesKeyInvalid = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	seriesKeyRepeat  = regexp.MustCompile(`_+`)
)

// Visualization is a UI component payload emitted alongside the text answer.
type Visualization struct {
	Component string       `json:"component"`
	Props     AnomalyProps `json:"props"`
}

type AnomalyProps struct {
	Title       string           `json:"title"`
	Rows        []rowset.Row     `json:"rows"`
	ChartData   []map[string]any `json:"chartData"`
	Anomalies   []Anomaly        `json:"anomalies"`
	Stats       AnomalyStats     `json:"stats"`
	ChartConfig ChartConfig      `json:"chartConfig"`
}

type ChartConfig struct {
	Height int         `json:"height"`
	Series []SeriesDef `json:"series"`
}

type SeriesDef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Anomaly struct {
	Name        string  `json:"name"`
	AnomalyType string  `json:"anomaly_type"`
	EventHour   string  `json:"event_hour"`
	Clicks      float64 `json:"clicks"`
	AvgClicks   float64 `json:"avg_clicks"`
}

type AnomalyStats struct {
	Total        int     `json:"total"`
	SpikeCount   int     `json:"spike_count"`
	DropCount    int     `json:"drop_count"`
	MaxDeviation float64 `json:"max_deviation"`
}

// BuildAnomalyVisualization turns anomaly rows (hour, media source, clicks, 6h baseline,
// anomaly flag) into a multi-series chart with one point per hour.
func BuildAnomalyVisualization(rows *rowset.Set) *Visualization {
	var data []rowset.Row
	if rows != nil {
		data = rows.Rows
	}
	chart, series := buildMultiSeriesChart(data)
	anomalies := rowsToAnomalies(data)

	safe := make([]rowset.Row, 0, len(data))
	for _, r := range data {
		row := make(rowset.Row, len(r))
		for k, v := range r {
			row[k] = rowset.Normalize(v)
		}
		safe = append(safe, row)
	}
	return &Visualization{
		Component: anomalyComponent,
		Props: AnomalyProps{
			Title:       anomalyTitle,
			Rows:        safe,
			ChartData:   chart,
			Anomalies:   anomalies,
			Stats:       anomalyStats(anomalies),
			ChartConfig: ChartConfig{Height: chartHeight, Series: series},
		},
	}
}

// Summary is the short text sent with the chart.
func (v *Visualization) Summary() string {
	p := v.Props
	if len(p.ChartData) == 0 {
		return "No hourly click data was found for this range."
	}
	if p.Stats.Total == 0 {
		return fmt.Sprintf("No anomalies were detected across %s in %s.",
			plural(len(p.ChartConfig.Series), "media source"), plural(len(p.ChartData), "hour"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Detected %s across %s.", plural(p.Stats.Total, "click anomaly"), plural(len(p.ChartConfig.Series), "media source"))
	top := p.Anomalies[0]
	for _, a := range p.Anomalies[1:] {
		if a.Clicks-a.AvgClicks > top.Clicks-top.AvgClicks {
			top = a
		}
	}
	fmt.Fprintf(&sb, " The largest was %s at hour %s with %s clicks against a 6 hour average of %s.",
		top.Name, top.EventHour, formatNumber(top.Clicks), formatNumber(top.AvgClicks))
	return sb.String()
}

// JSON renders the payload for the caller's UI channel.
func (v *Visualization) JSON() ([]byte, error) {
	return json.Marshal(v)
}

func buildMultiSeriesChart(rows []rowset.Row) ([]map[string]any, []SeriesDef) {
	if len(rows) == 0 {
		return []map[string]any{}, []SeriesDef{}
	}

	names := map[string]struct{}{}
	for _, r := range rows {
		names[seriesName(r)] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	keys := make(map[string]string, len(sorted))
	series := make([]SeriesDef, 0, len(sorted))
	for _, n := range sorted {
		keys[n] = sanitizeSeriesKey(n)
		series = append(series, SeriesDef{Key: keys[n], Name: n})
	}

	byHour := map[string]map[string]any{}
	for _, r := range rows {
		hour := hourString(r[anomalyHourCol])
		if hour == "" {
			continue
		}
		point, ok := byHour[hour]
		if !ok {
			point = map[string]any{"hour": hour}
			byHour[hour] = point
		}
		v, ok := toFloat(r[anomalyValueCol])
		if !ok || math.IsNaN(v) || v < 0 {
			v = 0
		}
		point[keys[seriesName(r)]] = v
	}

	hours := make([]string, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hourLess(hours[i], hours[j]) })

	chart := make([]map[string]any, 0, len(hours))
	for _, h := range hours {
		chart = append(chart, byHour[h])
	}
	return chart, series
}

func rowsToAnomalies(rows []rowset.Row) []Anomaly {
	out := []Anomaly{}
	for _, r := range rows {
		if !isTruthy(r[anomalyFlagCol]) {
			continue
		}
		out = append(out, Anomaly{
			Name:        seriesName(r),
			AnomalyType: anomalyTypeSpike,
			EventHour:   hourString(r[anomalyHourCol]),
			Clicks:      finite(r[anomalyValueCol]),
			AvgClicks:   finite(r[anomalyBaseCol]),
		})
	}
	return out
}

func anomalyStats(anomalies []Anomaly) AnomalyStats {
	s := AnomalyStats{Total: len(anomalies)}
	for _, a := range anomalies {
		switch a.AnomalyType {
		case anomalyTypeSpike:
			s.SpikeCount++
		case anomalyTypeDrop:
			s.DropCount++
		}
		s.MaxDeviation = math.Max(s.MaxDeviation, math.Abs(a.Clicks-a.AvgClicks))
	}
	return s
}

// sanitizeSeriesKey maps a series name to a chart-safe key.
func sanitizeSeriesKey(name string) string {
	s := seriesKeyInvalid.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(seriesKeyRepeat.ReplaceAllString(s, "_"), "_")
	if len(s) > maxSeriesKeyLen {
		s = s[:maxSeriesKeyLen]
	}
	if s == "" {
		return defaultSeriesKey
	}
	return s
}

func seriesName(r rowset.Row) string {
	v, ok := r[anomalySeriesCol]
	if !ok || v == nil {
		return unknownSeriesName
	}
	return rowset.FormatValue(v)
}

func hourString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return rowset.FormatValue(v)
}

// hourLess orders numeric hours numerically, then everything else lexically after them.
func hourLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}

// finite converts v to a float, mapping anything unparsable or non-finite to zero.
func finite(v any) float64 {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func isTruthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	switch strings.ToLower(strings.TrimSpace(rowset.FormatValue(v))) {
	case "true", "1", "yes", "y", "t":
		return true
	}
	return false
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}
