package metrics

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// LatencySnapshot summarizes a latency histogram at a point in time.
type LatencySnapshot struct {
	Total   int64           `json:"total"`
	P90Ms   float64         `json:"p90_ms"`
	P95Ms   float64         `json:"p95_ms"`
	Buckets []LatencyBucket `json:"buckets,omitempty"`
}

// LatencyBucket is one non-cumulative histogram bucket.
type LatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Count     int64   `json:"count"`
}

// SnapshotLatency reads the named histogram family from the gatherer and
// returns aggregate counts and estimated percentiles. Metrics are summed
// across all label sets (every bot contributes to one snapshot). Returns a
// zero snapshot when the family is absent or empty.
func SnapshotLatency(gatherer prometheus.Gatherer, metricName string) LatencySnapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return LatencySnapshot{}
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == metricName {
			family = mf
			break
		}
	}
	if family == nil {
		return LatencySnapshot{}
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return LatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	buckets := make([]LatencyBucket, 0, len(uppers))
	var prev uint64
	for _, upper := range uppers {
		cum := cumulativeByUpper[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}
		prev = cum
		if math.IsInf(upper, 1) {
			// The +Inf overflow bucket only matters when it holds samples.
			if count == 0 {
				continue
			}
		}
		buckets = append(buckets, LatencyBucket{LeSeconds: upper, Count: count})
	}

	p90 := histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper)
	p95 := histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper)

	return LatencySnapshot{
		Total:   int64(sampleCount),
		P90Ms:   p90 * 1000.0,
		P95Ms:   p95 * 1000.0,
		Buckets: buckets,
	}
}

// histogramQuantile linearly interpolates within the bucket that crosses the
// target rank, the same estimate histogram_quantile() uses in PromQL.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper float64
	var prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return prevUpper + fraction*(upper-prevUpper)
	}
	return uppers[len(uppers)-1]
}
