package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

const activityBucketSeconds = 3600

// showActivityChart renders a bar chart of hourly frame and press counts over
// the requested window. It is an operator-facing debugging view, not part of
// the JSON API surface.
func (s *Server) showActivityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	start, end, err := parseDaysWindow(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
		return
	}
	days := int((end - start) / 86400)

	buckets, err := s.db.FrameActivity(start, end, activityBucketSeconds)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Error retrieving frame activity: %v", err))
		return
	}
	presses, err := s.db.Presses(start, end)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Error retrieving presses: %v", err))
		return
	}

	frameCounts := make(map[int64]int64, len(buckets))
	for _, b := range buckets {
		frameCounts[int64(b.BucketStart)] = b.FrameCount
	}
	pressCounts := make(map[int64]int64)
	for _, p := range presses {
		bucket := int64(p.StartUnix) / activityBucketSeconds * activityBucketSeconds
		pressCounts[bucket]++
	}

	// Walk the window hour by hour so quiet hours render as zero bars rather
	// than vanishing from the axis.
	firstBucket := int64(start) / activityBucketSeconds * activityBucketSeconds
	var x []string
	var frameSeries, pressSeries []opts.BarData
	for b := firstBucket; b < int64(end)+activityBucketSeconds; b += activityBucketSeconds {
		x = append(x, time.Unix(b, 0).Format("Jan 2 15:04"))
		frameSeries = append(frameSeries, opts.BarData{Value: frameCounts[b]})
		pressSeries = append(pressSeries, opts.BarData{Value: pressCounts[b]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Keyfob Activity", Subtitle: fmt.Sprintf("last %d day(s), hourly buckets", days)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("frames", frameSeries,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("presses", pressSeries)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
