// extract turns labelled lecture clips into training CSVs. Each clip is a
// directory of JPEG frames; the detectors run over every frame and the
// temporal aggregation folds the clip into one feature row.
//
// Expected layout under -data:
//
//	<split>_clips.csv                clip,boredom,engagement,confusion,frustration
//	<split>/<clip>/*.jpg             frames in lexical order
//
// for each split of train, val and test.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/classlens-data/classlens/internal/engage"
	"github.com/classlens-data/classlens/internal/vision"
)

var (
	dataDir    = flag.String("data", "data/clips", "Root directory with split label CSVs and clip frame directories")
	outDir     = flag.String("out", "data/engagement", "Output directory for feature and label CSVs")
	faceModel  = flag.String("face-model", "", "YuNet ONNX model for facial and pose features")
	phoneModel = flag.String("phone-model", "", "YOLO ONNX model for phone detection")
)

// clipLabel is one labelled clip from a split manifest.
type clipLabel struct {
	Clip   string
	Scores map[string]float64
}

func main() {
	flag.Parse()

	detectors := buildDetectors()
	aggregator := engage.NewAggregator(detectors...)

	for _, split := range []string{engage.SplitTrain, engage.SplitVal, engage.SplitTest} {
		manifest := filepath.Join(*dataDir, split+"_clips.csv")
		clips, err := readManifest(manifest)
		if err != nil {
			log.Printf("skipping split %s: %v", split, err)
			continue
		}

		var samples []engage.FeatureMap
		labels := make(map[string][]float64)
		for _, state := range engage.AffectiveStates {
			labels[state] = nil
		}

		for _, cl := range clips {
			frames, err := engage.ReadFrameDir(filepath.Join(*dataDir, split, cl.Clip))
			if err != nil {
				log.Printf("clip %s: %v (skipped)", cl.Clip, err)
				continue
			}
			aggregator.Reset()
			features := aggregator.ExtractAggregatedFeatures(frames)
			if features.Len() == 0 {
				log.Printf("clip %s: no features extracted (skipped)", cl.Clip)
				continue
			}
			samples = append(samples, features)
			for _, state := range engage.AffectiveStates {
				labels[state] = append(labels[state], cl.Scores[state])
			}
		}

		if len(samples) == 0 {
			log.Printf("split %s produced no samples", split)
			continue
		}

		names, err := engage.WriteFeaturesCSV(*outDir, split, samples)
		if err != nil {
			log.Fatalf("write %s features: %v", split, err)
		}
		if err := engage.WriteLabelsCSV(*outDir, split, labels); err != nil {
			log.Fatalf("write %s labels: %v", split, err)
		}
		log.Printf("split %-5s: %d clips, %d features", split, len(samples), len(names))
	}
}

// buildDetectors creates the configured vision adapters, padding missing
// namespaces with static defaults so every split shares one column layout.
func buildDetectors() []engage.Detector {
	var detectors []engage.Detector
	if *faceModel != "" {
		facial, err := vision.NewFacialDetector(vision.DefaultFacialConfig(*faceModel))
		if err != nil {
			log.Fatalf("facial detector: %v", err)
		}
		pose, err := vision.NewPoseDetector(*faceModel)
		if err != nil {
			log.Fatalf("pose detector: %v", err)
		}
		detectors = append(detectors, facial, pose)
	}
	if *phoneModel != "" {
		phone, err := vision.NewPhoneDetector(*phoneModel)
		if err != nil {
			log.Fatalf("phone detector: %v", err)
		}
		detectors = append(detectors, phone)
	}

	present := make(map[string]bool)
	for _, d := range detectors {
		present[d.Namespace()] = true
	}
	defaults := map[string]func() engage.FeatureMap{
		engage.NamespaceFacial: engage.FacialDefaults,
		engage.NamespacePose:   engage.PoseDefaults,
		engage.NamespaceHand:   engage.HandDefaults,
		engage.NamespacePhone:  engage.PhoneDefaults,
	}
	for _, ns := range []string{engage.NamespaceFacial, engage.NamespacePose, engage.NamespaceHand, engage.NamespacePhone} {
		if !present[ns] {
			fm := defaults[ns]()
			detectors = append(detectors, engage.NewStaticDetector(ns, fm, fm))
		}
	}
	return detectors
}

// readManifest parses a split manifest CSV into clip labels.
func readManifest(path string) ([]clipLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: need a header and at least one row", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["clip"]; !ok {
		return nil, fmt.Errorf("%s: missing clip column", path)
	}
	for _, state := range engage.AffectiveStates {
		if _, ok := col[state]; !ok {
			return nil, fmt.Errorf("%s: missing %s column", path, state)
		}
	}

	clips := make([]clipLabel, 0, len(records)-1)
	for i, rec := range records[1:] {
		cl := clipLabel{Clip: rec[col["clip"]], Scores: make(map[string]float64)}
		for _, state := range engage.AffectiveStates {
			v, err := strconv.ParseFloat(rec[col[state]], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			cl.Scores[state] = v
		}
		clips = append(clips, cl)
	}
	return clips, nil
}
