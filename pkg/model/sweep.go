package model

import (
	"math"
	"sort"

	"github.com/yumyai/metabin/logger"
	"go.uber.org/zap"
)

// ClusterGroup is one retained cluster from a sweep: its member contigs plus
// the metrics it was accepted with.
type ClusterGroup struct {
	Contigs []*ContigRecord
	Metrics ClusterMetrics
}

// RecursiveCluster carries out the eps sweep, starting at params.StartEps and
// continuing until clustering collapses into a single group.
//
// After every round the partition is scored and the one with the best median
// completeness among complete-and-pure clusters is retained. Ties go to the
// later (larger eps) round. Two break conditions speed this up: a plateau of
// rounds producing the same cluster count boosts the step, and too many rounds
// without a single passing cluster abandon the sweep as a lost cause.
//
// Returns the accepted clusters of the best partition and the residual contigs
// that failed the cutoffs. An empty accepted set with the input returned
// untouched means nothing here could be subdivided.
func RecursiveCluster(contigs []*ContigRecord, markers MarkerTable, domain string,
	completenessCutoff, purityCutoff float64, method ClusterMethod, params SweepParams) ([]ClusterGroup, []*ContigRecord, error) {

	expected := MarkerSetSize(domain)

	eps := params.StartEps
	step := params.EpsStep
	rounds := make(map[int]int)
	zeroRounds := 0
	bestMedian := math.Inf(-1)
	var bestLabels []int
	var bestMetrics map[int]ClusterMetrics

	nClusters := math.MaxInt
	for nClusters > 1 {
		labels, err := RunClustering(contigs, eps, method)
		if err != nil {
			return nil, nil, err
		}
		metrics := AddMetrics(contigs, labels, markers, expected)

		median, ok := medianPassingCompleteness(metrics, completenessCutoff, purityCutoff)
		if ok && median >= bestMedian {
			bestMedian = median
			bestLabels = labels
			bestMetrics = metrics
		}

		nClusters = len(metrics)
		rounds[nClusters]++
		// A lot of rounds with the same number of clusters: speed through
		// the plateau.
		if rounds[nClusters] > params.PlateauRounds {
			step *= params.StepBoost
		}
		if !ok || median == 0 {
			zeroRounds++
		}
		if zeroRounds >= params.MaxZeroRounds {
			break
		}

		logger.Debug("sweep round",
			zap.Float64("eps", eps),
			zap.Int("clusters", nClusters),
			zap.Float64("median_completeness", median),
			zap.Float64("best_median", bestMedian))

		eps += step
	}

	if bestLabels == nil {
		logger.Debug("no complete or pure clusters found")
		return nil, contigs, nil
	}

	accepted, residual := splitByCutoffs(contigs, bestLabels, bestMetrics, completenessCutoff, purityCutoff)
	logger.Debug("sweep done",
		zap.Float64("best_median", bestMedian),
		zap.Int("clustered", len(contigs)-len(residual)),
		zap.Int("unclustered", len(residual)))
	return accepted, residual, nil
}

// medianPassingCompleteness is the median completeness over clusters passing
// both cutoffs. ok is false when no cluster passes; that median must never be
// treated as an improvement.
func medianPassingCompleteness(metrics map[int]ClusterMetrics, completenessCutoff, purityCutoff float64) (float64, bool) {
	var vals []float64
	for _, m := range metrics {
		if m.passes(completenessCutoff, purityCutoff) {
			vals = append(vals, m.Completeness)
		}
	}
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2, true
	}
	return vals[mid], true
}

// splitByCutoffs partitions the best round into accepted cluster groups
// (ordered by first appearance, so downstream bin numbering is deterministic)
// and the residual contigs.
func splitByCutoffs(contigs []*ContigRecord, labels []int, metrics map[int]ClusterMetrics,
	completenessCutoff, purityCutoff float64) ([]ClusterGroup, []*ContigRecord) {

	var order []int
	members := make(map[int][]*ContigRecord)
	var residual []*ContigRecord

	for i, c := range contigs {
		label := labels[i]
		m, scored := metrics[label]
		if label == noiseLabel || !scored || !m.passes(completenessCutoff, purityCutoff) {
			residual = append(residual, c)
			continue
		}
		if _, ok := members[label]; !ok {
			order = append(order, label)
		}
		members[label] = append(members[label], c)
	}

	accepted := make([]ClusterGroup, 0, len(order))
	for _, label := range order {
		accepted = append(accepted, ClusterGroup{
			Contigs: members[label],
			Metrics: metrics[label],
		})
	}
	return accepted, residual
}
