package model

import (
	"fmt"
	"sort"

	"github.com/yumyai/metabin/logger"
	"go.uber.org/zap"
)

func binName(n int) string {
	return fmt.Sprintf("bin_%04d", n)
}

// assignBin writes the bin name and the cluster's metrics onto every member.
// Each contig gets its own copy of the metric values.
func assignBin(g ClusterGroup, name string) {
	for _, c := range g.Contigs {
		completeness := g.Metrics.Completeness
		c.Cluster = name
		c.Completeness = &completeness
		if g.Metrics.Purity != nil {
			purity := *g.Metrics.Purity
			c.Purity = &purity
		}
	}
}

func markUnclustered(c *ContigRecord) {
	c.Cluster = Unclustered
}

// GetClusters repeatedly sweeps the residual contigs, peeling off the clusters
// that pass both cutoffs and renaming them into globally unique bins, until
// nothing more can be separated. Every input contig ends up labeled, possibly
// with the unclustered sentinel. The records are annotated in place and the
// input slice is returned.
func GetClusters(contigs []*ContigRecord, markers MarkerTable, opts BinningOptions) ([]*ContigRecord, error) {

	if !markers.Overlaps(contigs) {
		return nil, ErrNoMarkerOverlap
	}

	numBins := 0
	current := contigs
	for {
		accepted, residual, err := RecursiveCluster(current, markers,
			opts.Domain, opts.Completeness, opts.Purity, opts.Method, opts.Sweep)
		if err != nil {
			return nil, err
		}

		// No contigs can be clustered, label the leftovers and stop.
		if len(accepted) == 0 {
			for _, c := range residual {
				markUnclustered(c)
			}
			break
		}

		for _, g := range accepted {
			numBins++
			assignBin(g, binName(numBins))
		}

		// All contigs have now been clustered.
		if len(residual) == 0 {
			break
		}
		// Continue with the unclustered contigs.
		current = residual
	}

	return contigs, nil
}

// Binning is the top-level entrypoint. Without taxonomy it delegates straight
// to GetClusters. With taxonomy it walks the canonical ranks (root excluded,
// broadest first by default), groups contigs by their taxon at each rank and
// runs one sweep per group. Most of the separative power is expected from the
// taxonomic split itself, so a single sweep per group trades per-group
// thoroughness for runtime.
//
// The bin counter and the set of already clustered contigs are global across
// all ranks and groups: a bin name is never reused and a contig accepted at a
// broad rank is not reconsidered at a finer one.
func Binning(contigs []*ContigRecord, markers MarkerTable, opts BinningOptions) ([]*ContigRecord, error) {

	// First check needs to ensure we have markers available to check
	// binning quality.
	if !markers.Overlaps(contigs) {
		return nil, ErrNoMarkerOverlap
	}

	if !opts.Taxonomy {
		return GetClusters(contigs, markers, opts)
	}

	ranks := rankOrder(opts.Reverse)
	clustered := make(map[string]struct{})
	numBins := 0

	for _, rank := range ranks {
		groups, names := groupByRank(contigs, rank)

		nContigs := 0
		for _, g := range groups {
			nContigs += len(g)
		}
		logger.Info("examining rank",
			zap.String("rank", rank),
			zap.Int("taxa", len(names)),
			zap.Int("contigs", nContigs))

		for _, name := range names {
			// Only cluster contigs that have not already been assigned
			// a bin in a previous rank or group.
			var group []*ContigRecord
			for _, c := range groups[name] {
				if _, ok := clustered[c.Contig]; !ok {
					group = append(group, c)
				}
			}
			// After the filters, are there multiple contigs to cluster?
			if len(group) <= 1 {
				continue
			}

			logger.Debug("examining taxon",
				zap.String("rank", rank),
				zap.String("taxon", name),
				zap.Int("contigs", len(group)))

			accepted, _, err := RecursiveCluster(group, markers,
				opts.Domain, opts.Completeness, opts.Purity, opts.Method, opts.Sweep)
			if err != nil {
				return nil, err
			}

			for _, g := range accepted {
				numBins++
				assignBin(g, binName(numBins))
				for _, c := range g.Contigs {
					clustered[c.Contig] = struct{}{}
				}
			}
		}
	}

	for _, c := range contigs {
		if _, ok := clustered[c.Contig]; !ok {
			markUnclustered(c)
		}
	}

	return contigs, nil
}

// rankOrder is the canonical rank walk without the root rank.
// reverse=true walks broadest to finest.
func rankOrder(reverse bool) []string {
	var ranks []string
	for _, r := range CanonicalRanks {
		if r == "root" {
			continue
		}
		ranks = append(ranks, r)
	}
	if reverse {
		for i, j := 0, len(ranks)-1; i < j; i, j = i+1, j-1 {
			ranks[i], ranks[j] = ranks[j], ranks[i]
		}
	}
	return ranks
}

// groupByRank buckets contigs by their taxon at one rank. Contigs without a
// lineage or marked unclassified at that rank are left out.
// TODO: account for novel taxa here instead of skipping 'unclassified'.
func groupByRank(contigs []*ContigRecord, rank string) (map[string][]*ContigRecord, []string) {
	groups := make(map[string][]*ContigRecord)
	for _, c := range contigs {
		name := c.Lineage[rank]
		if name == "" || name == "unclassified" {
			continue
		}
		groups[name] = append(groups[name], c)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return groups, names
}
