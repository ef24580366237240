package model

import (
	"errors"
	"fmt"
)

// Sentinel for contigs that could not be placed into any bin.
const Unclustered = "unclustered"

// Label used inside a partition before bin names are issued.
const noiseLabel = -1

// Defining possible error
var ErrNoMarkerOverlap = errors.New("no markers for contigs in table, unable to assess binning quality")

type InvalidMethodError struct {
	Method string // the method name that was requested
}

func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf("clustering method %q is not a choice, choose b/w DBSCAN & HDBSCAN", e.Method)
}

type ClusterMethod string

const (
	MethodDBSCAN  ClusterMethod = "DBSCAN"
	MethodHDBSCAN ClusterMethod = "HDBSCAN"
)

// Canonical ranks, finest to broadest. The root rank is on every lineage and
// is never a useful grouping key, so the binner skips it.
var CanonicalRanks = []string{
	"species", "genus", "family", "order", "class", "phylum", "superkingdom", "root",
}

// ContigRecord is one row of the master table: embedded k-mer coordinates,
// optional coverage and lineage. Cluster, Completeness and Purity are written
// exactly once, by the run that accepts the contig into a bin.
type ContigRecord struct {
	Contig   string
	X, Y, Z  float64
	Coverage *float64          // nil when no coverage column was provided
	Lineage  map[string]string // rank -> taxon name, nil without taxonomy

	Cluster      string
	Completeness *float64
	Purity       *float64
}

// MarkerTable maps contig -> marker gene -> occurrence count. A contig missing
// from the table simply has no detected markers.
type MarkerTable map[string]map[string]int

// Overlaps reports whether at least one contig has marker information.
func (mt MarkerTable) Overlaps(contigs []*ContigRecord) bool {
	for _, c := range contigs {
		if _, ok := mt[c.Contig]; ok {
			return true
		}
	}
	return false
}

// ClusterMetrics holds the marker-derived quality of one cluster.
// Purity is nil when the cluster has no detected markers at all.
type ClusterMetrics struct {
	Completeness float64
	Purity       *float64
}

// SweepParams are the empirically tuned knobs of the eps sweep. They are
// defaults, not invariants.
type SweepParams struct {
	StartEps      float64 // first eps tried
	EpsStep       float64 // eps increment between rounds
	PlateauRounds int     // same cluster count seen more than this -> boost step
	StepBoost     float64 // multiplier applied to the step on a plateau
	MaxZeroRounds int     // rounds without any passing cluster before giving up
}

func DefaultSweepParams() SweepParams {
	return SweepParams{
		StartEps:      0.3,
		EpsStep:       0.1,
		PlateauRounds: 10,
		StepBoost:     10,
		MaxZeroRounds: 10,
	}
}

// BinningOptions select domain constants, cutoffs and the clustering strategy
// for one full binning run.
type BinningOptions struct {
	Domain       string  // bacteria | archaea
	Completeness float64 // cutoff to retain a cluster, percent
	Purity       float64 // cutoff to retain a cluster, percent
	Method       ClusterMethod
	Taxonomy     bool // split by canonical ranks before clustering
	Reverse      bool // true: broadest rank first
	Sweep        SweepParams
}

func DefaultBinningOptions() BinningOptions {
	return BinningOptions{
		Domain:       "bacteria",
		Completeness: 20.0,
		Purity:       90.0,
		Method:       MethodDBSCAN,
		Taxonomy:     true,
		Reverse:      true,
		Sweep:        DefaultSweepParams(),
	}
}
