package model

import "strings"

// Expected single-copy marker set sizes per kingdom.
var markerSetSizes = map[string]float64{
	"bacteria": 139.0,
	"archaea":  162.0,
}

// MarkerSetSize returns the expected marker count for a kingdom. Unknown
// kingdoms fall back to the bacterial set.
func MarkerSetSize(domain string) float64 {
	if n, ok := markerSetSizes[strings.ToLower(domain)]; ok {
		return n
	}
	return markerSetSizes["bacteria"]
}

// AddMetrics computes completeness and purity for every cluster of a
// partition. labels runs parallel to contigs; the noise label gets no entry.
//
// A marker is present in a cluster when its summed count over the member
// contigs is >= 1, and single-copy when the sum is exactly 1.
//
//	completeness = distinct present markers / expected * 100
//	purity       = distinct single-copy markers / distinct present * 100
//
// Purity is nil when the cluster has zero present markers, protecting from
// divide by zero.
func AddMetrics(contigs []*ContigRecord, labels []int, markers MarkerTable, expected float64) map[int]ClusterMetrics {

	summed := make(map[int]map[string]int)

	for i, c := range contigs {
		label := labels[i]
		if label == noiseLabel {
			continue
		}
		if _, ok := summed[label]; !ok {
			summed[label] = make(map[string]int)
		}
		for marker, count := range markers[c.Contig] {
			summed[label][marker] += count
		}
	}

	metrics := make(map[int]ClusterMetrics, len(summed))

	for label, counts := range summed {
		var present, singleCopy int
		for _, count := range counts {
			if count >= 1 {
				present++
			}
			if count == 1 {
				singleCopy++
			}
		}

		m := ClusterMetrics{
			Completeness: float64(present) / expected * 100.0,
		}
		if present > 0 {
			purity := float64(singleCopy) / float64(present) * 100.0
			m.Purity = &purity
		}
		metrics[label] = m
	}

	return metrics
}

// passes applies both retention cutoffs. A nil purity never passes.
func (m ClusterMetrics) passes(completenessCutoff, purityCutoff float64) bool {
	return m.Completeness >= completenessCutoff &&
		m.Purity != nil && *m.Purity >= purityCutoff
}
