// train fits the four engagement regressors from exported feature and
// label CSVs and writes the model artefacts for the server to load.
package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/classlens-data/classlens/internal/engage"
)

var (
	dataDir  = flag.String("data", "data/engagement", "Directory with <split>_features.csv and <split>_labels.csv")
	outDir   = flag.String("out", "models/engagement", "Output directory for model artefacts")
	valSplit = flag.Float64("val-split", 0.2, "Fraction of training rows held out for validation")
	maxDepth = flag.Int("depth", 0, "Tree depth override (0 uses the default)")
	rounds   = flag.Int("rounds", 0, "Boosting rounds override (0 uses the default)")
)

// Number of top importance entries printed per state.
const topImportance = 10

func main() {
	flag.Parse()

	cfg := engage.DefaultBoosterConfig()
	if *maxDepth > 0 {
		cfg.MaxDepth = *maxDepth
	}
	if *rounds > 0 {
		cfg.Rounds = *rounds
	}

	table, err := engage.ReadFeaturesCSV(filepath.Join(*dataDir, engage.FeaturesFilename(engage.SplitTrain)))
	if err != nil {
		log.Fatalf("load training features: %v", err)
	}
	labels, err := engage.ReadLabelsCSV(filepath.Join(*dataDir, engage.LabelsFilename(engage.SplitTrain)))
	if err != nil {
		log.Fatalf("load training labels: %v", err)
	}
	rows, cols := table.X.Dims()
	log.Printf("training on %d samples x %d features", rows, cols)

	classifier := engage.NewEngagementClassifier(cfg)
	metrics, err := classifier.Train(*table, labels, *valSplit)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	for _, state := range engage.AffectiveStates {
		m, ok := metrics[state]
		if !ok {
			log.Printf("%-12s skipped (no labels)", state)
			continue
		}
		log.Printf("%-12s rmse=%.4f rounds=%d train=%d val=%d",
			state, m.ValidationRMSE, m.Rounds, m.TrainSamples, m.ValSamples)

		importance, err := classifier.FeatureImportance(state)
		if err != nil {
			continue
		}
		for i, fi := range importance {
			if i >= topImportance {
				break
			}
			log.Printf("  %-40s gain=%.2f", fi.Name, fi.Gain)
		}
	}

	if err := classifier.Save(*outDir); err != nil {
		log.Fatalf("save models: %v", err)
	}
	log.Printf("models written to %s", *outDir)
}
