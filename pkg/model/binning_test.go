package model

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/yumyai/metabin/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(zapcore.WarnLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// identicalContigs puts n contigs on one spot, each with its own single-copy
// marker.
func identicalContigs(n int, prefix string) ([]*ContigRecord, MarkerTable) {
	contigs := make([]*ContigRecord, 0, n)
	markers := make(MarkerTable)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s_%03d", prefix, i)
		contigs = append(contigs, &ContigRecord{Contig: name, X: 1, Y: 1})
		markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i): 1}
	}
	return contigs, markers
}

func TestGetClustersSingleCompleteBin(t *testing.T) {

	contigs, markers := identicalContigs(5, "c")

	opts := DefaultBinningOptions()
	opts.Completeness = 3.0

	out, err := GetClusters(contigs, markers, opts)
	require.NoError(t, err)
	require.Len(t, out, 5)

	for _, c := range out {
		assert.Equal(t, "bin_0001", c.Cluster)
		require.NotNil(t, c.Completeness)
		require.NotNil(t, c.Purity)
		assert.InDelta(t, 5.0/139.0*100, *c.Completeness, 1e-9)
		assert.InDelta(t, 100.0, *c.Purity, 1e-9)
	}
}

func TestGetClustersNoMarkerOverlap(t *testing.T) {

	contigs := []*ContigRecord{
		{Contig: "c1", X: 0, Y: 0},
		{Contig: "c2", X: 1, Y: 1},
	}

	_, err := GetClusters(contigs, MarkerTable{}, DefaultBinningOptions())
	require.ErrorIs(t, err, ErrNoMarkerOverlap)

	// Markers for unrelated contigs do not count as overlap either
	_, err = GetClusters(contigs, MarkerTable{"other": {"m1": 1}}, DefaultBinningOptions())
	require.ErrorIs(t, err, ErrNoMarkerOverlap)
}

func TestGetClustersIssuesUniqueBins(t *testing.T) {

	// Two well-separated genomes sharing the universal marker set: each is
	// pure alone, and any merged cluster doubles every marker and dies on
	// purity.
	var contigs []*ContigRecord
	markers := make(MarkerTable)
	for g, origin := range []float64{0, 9} {
		for i := 0; i < 10; i++ {
			name := fmt.Sprintf("g%d_%03d", g, i)
			contigs = append(contigs, &ContigRecord{Contig: name, X: origin, Y: origin})
			markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i): 1}
		}
	}

	opts := DefaultBinningOptions()
	opts.Completeness = 5.0

	out, err := GetClusters(contigs, markers, opts)
	require.NoError(t, err)

	bins := make(map[string][]string)
	for _, c := range out {
		require.NotEqual(t, Unclustered, c.Cluster)
		bins[c.Cluster] = append(bins[c.Cluster], c.Contig)
	}
	require.Len(t, bins, 2)
	assert.Len(t, bins["bin_0001"], 10)
	assert.Len(t, bins["bin_0002"], 10)
}

func TestGetClustersLeavesContaminatedResidualUnclustered(t *testing.T) {

	// A clean genome and a far-away group that only duplicates two of its
	// markers. The clean group is extracted, the contaminated one can never
	// pass purity and ends up unclustered.
	var contigs []*ContigRecord
	markers := make(MarkerTable)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("clean_%03d", i)
		contigs = append(contigs, &ContigRecord{Contig: name, X: 0, Y: 0})
		markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i): 1}
	}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("dirty_%03d", i)
		contigs = append(contigs, &ContigRecord{Contig: name, X: 8, Y: 8})
		markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i%2): 1}
	}

	opts := DefaultBinningOptions()
	opts.Completeness = 5.0

	out, err := GetClusters(contigs, markers, opts)
	require.NoError(t, err)
	require.Len(t, out, 20)

	for _, c := range out {
		if c.Contig[0] == 'c' {
			assert.Equal(t, "bin_0001", c.Cluster)
		} else {
			assert.Equal(t, Unclustered, c.Cluster)
			assert.Nil(t, c.Completeness)
			assert.Nil(t, c.Purity)
		}
	}
}

func TestBinningWithoutTaxonomy(t *testing.T) {

	contigs, markers := identicalContigs(5, "c")

	opts := DefaultBinningOptions()
	opts.Completeness = 3.0
	opts.Taxonomy = false

	out, err := Binning(contigs, markers, opts)
	require.NoError(t, err)
	for _, c := range out {
		assert.Equal(t, "bin_0001", c.Cluster)
	}
}

func TestBinningNoMarkerOverlap(t *testing.T) {

	contigs := []*ContigRecord{
		{Contig: "c1", Lineage: map[string]string{"phylum": "p1"}},
		{Contig: "c2", Lineage: map[string]string{"phylum": "p1"}},
	}
	_, err := Binning(contigs, MarkerTable{}, DefaultBinningOptions())
	require.ErrorIs(t, err, ErrNoMarkerOverlap)
}

// taxonomyFixture builds two feature-space-identical genomes that only the
// phylum split can separate: alpha is clean, beta duplicates two of alpha's
// markers so the merged cluster fails purity.
func taxonomyFixture() ([]*ContigRecord, MarkerTable) {
	var contigs []*ContigRecord
	markers := make(MarkerTable)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("alpha_%03d", i)
		contigs = append(contigs, &ContigRecord{
			Contig:  name,
			X:       1, Y: 1,
			Lineage: map[string]string{"superkingdom": "bacteria", "phylum": "alphaphyla"},
		})
		markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i): 1}
	}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("beta_%03d", i)
		contigs = append(contigs, &ContigRecord{
			Contig:  name,
			X:       1, Y: 1,
			Lineage: map[string]string{"superkingdom": "bacteria", "phylum": "betaphyla"},
		})
		markers[name] = map[string]int{fmt.Sprintf("marker_%03d", i%2): 1}
	}
	return contigs, markers
}

func TestBinningTaxonomySeparatesWhatFeaturesCannot(t *testing.T) {

	opts := DefaultBinningOptions()
	opts.Completeness = 5.0

	// Without taxonomy everything sits in one impure cluster: zero bins
	contigs, markers := taxonomyFixture()
	opts.Taxonomy = false
	out, err := Binning(contigs, markers, opts)
	require.NoError(t, err)
	for _, c := range out {
		assert.Equal(t, Unclustered, c.Cluster)
	}

	// With the phylum split the clean genome is recovered
	contigs, markers = taxonomyFixture()
	opts.Taxonomy = true
	out, err = Binning(contigs, markers, opts)
	require.NoError(t, err)

	bins := make(map[string]int)
	unclustered := 0
	for _, c := range out {
		if c.Cluster == Unclustered {
			unclustered++
			continue
		}
		bins[c.Cluster]++
		assert.Equal(t, "alpha", c.Contig[:5])
	}
	assert.Len(t, bins, 1)
	assert.Equal(t, 10, bins["bin_0001"])
	assert.Equal(t, 10, unclustered)
}

func TestBinningCoverageInvariant(t *testing.T) {

	contigs, markers := taxonomyFixture()
	opts := DefaultBinningOptions()
	opts.Completeness = 5.0

	out, err := Binning(contigs, markers, opts)
	require.NoError(t, err)
	require.Len(t, out, 20)

	seen := make(map[string]bool)
	for _, c := range out {
		assert.False(t, seen[c.Contig], "contig %s appears twice", c.Contig)
		seen[c.Contig] = true
		assert.NotEmpty(t, c.Cluster, "contig %s left unlabeled", c.Contig)
	}
}

func TestBinningSkipsUnclassifiedTaxa(t *testing.T) {

	contigs, markers := identicalContigs(6, "c")
	for i, c := range contigs {
		if i < 3 {
			c.Lineage = map[string]string{"phylum": "unclassified"}
		} else {
			c.Lineage = map[string]string{"phylum": "realphyla"}
		}
	}

	opts := DefaultBinningOptions()
	opts.Completeness = 1.0

	out, err := Binning(contigs, markers, opts)
	require.NoError(t, err)

	for i, c := range out {
		if i < 3 {
			assert.Equal(t, Unclustered, c.Cluster)
		} else {
			assert.Equal(t, "bin_0001", c.Cluster)
		}
	}
}

func TestRankOrder(t *testing.T) {

	coarseFirst := rankOrder(true)
	require.Equal(t, []string{
		"superkingdom", "phylum", "class", "order", "family", "genus", "species",
	}, coarseFirst)

	fineFirst := rankOrder(false)
	require.Equal(t, []string{
		"species", "genus", "family", "order", "class", "phylum", "superkingdom",
	}, fineFirst)
}
