package main

import (
	"context"
	"database/sql"
	"os"
	"path"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/yumyai/metabin/internal/util"
	"github.com/yumyai/metabin/logger"
	mydb "github.com/yumyai/metabin/pkg/db"
	"github.com/yumyai/metabin/pkg/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "modernc.org/sqlite"
)

var (
	metabin_data string
)

func main() {

	// Establish logger
	VERSION := "0.1.0"
	LOG_LEVEL := zapcore.InfoLevel
	if os.Getenv("METABIN_VERBOSE") == "true" {
		LOG_LEVEL = zapcore.DebugLevel
	}

	if err := logger.InitLogger(LOG_LEVEL); err != nil {
		panic(err)
	}

	// Try load env
	dotenvErr := godotenv.Load()

	if dotenvErr != nil {
		logger.Warn("No .env found, using local environment")
	}

	defer logger.Sync() // Make sure that the buffered is flushed.

	metabin_data = os.Getenv("METABIN_DATA")

	if metabin_data == "" {
		logger.Warn("No local environment (METABIN_DATA), using default value (./data)")
		metabin_data = "./data"
	}

	if !util.DirExists(metabin_data) {
		logger.Fatal("Data directory does not exist", zap.String("METABIN_DATA", metabin_data))
	}

	metabin_sqlite := path.Join(metabin_data, "db/binning.db")

	if !util.FileExists(metabin_sqlite) {
		logger.Warn("Input database not found, it will be created empty", zap.String("DB_LOC", metabin_sqlite))
	}

	// Connect to db
	db, _ := sql.Open("sqlite", metabin_sqlite)
	defer db.Close()

	store := &mydb.BinStore{DB: db}

	logger.Info("Start:", zap.String("Version", VERSION))
	logger.Info("Open database on", zap.String("DB_LOC", metabin_sqlite))

	ctx := context.Background()

	if err := store.InitSchema(ctx); err != nil {
		logger.Fatal("Cannot initialize schema", zap.Error(err))
	}

	contigs, err := store.LoadContigs(ctx)
	if err != nil {
		logger.Fatal("Cannot load contig table", zap.Error(err))
	}

	markers, err := store.LoadMarkers(ctx)
	if err != nil {
		logger.Fatal("Cannot load marker table", zap.Error(err))
	}

	logger.Info("Tables loaded",
		zap.Int("contigs", len(contigs)),
		zap.Int("contigs_with_markers", len(markers)))

	opts := optionsFromEnv()

	annotated, err := model.Binning(contigs, markers, opts)
	if err != nil {
		logger.Fatal("Binning failed", zap.Error(err))
	}

	runID := mydb.NewRunID()
	if err := store.SaveAssignments(ctx, runID, annotated); err != nil {
		logger.Fatal("Cannot save assignments", zap.Error(err))
	}

	bins := make(map[string]bool)
	unclustered := 0
	for _, c := range annotated {
		if c.Cluster == model.Unclustered {
			unclustered++
			continue
		}
		bins[c.Cluster] = true
	}

	logger.Info("Binning done",
		zap.String("run_id", runID),
		zap.Int("bins", len(bins)),
		zap.Int("unclustered", unclustered))
}

// optionsFromEnv overrides the defaults with whatever env vars are set.
func optionsFromEnv() model.BinningOptions {

	opts := model.DefaultBinningOptions()

	if domain := os.Getenv("METABIN_DOMAIN"); domain != "" {
		opts.Domain = domain
	}
	if method := os.Getenv("METABIN_METHOD"); method != "" {
		opts.Method = model.ClusterMethod(method)
	}
	if v := os.Getenv("METABIN_COMPLETENESS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Completeness = f
		} else {
			logger.Warn("Bad METABIN_COMPLETENESS, using default", zap.String("value", v))
		}
	}
	if v := os.Getenv("METABIN_PURITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Purity = f
		} else {
			logger.Warn("Bad METABIN_PURITY, using default", zap.String("value", v))
		}
	}
	if v := os.Getenv("METABIN_TAXONOMY"); v != "" {
		opts.Taxonomy = v != "false"
	}
	if v := os.Getenv("METABIN_RANK_REVERSE"); v != "" {
		opts.Reverse = v != "false"
	}

	return opts
}
