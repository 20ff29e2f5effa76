// classlens is the engagement analysis server. It loads the trained
// engagement models, opens the lecture history database, and serves the
// processing and reporting API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/classlens-data/classlens/internal/api"
	"github.com/classlens-data/classlens/internal/config"
	"github.com/classlens-data/classlens/internal/db"
	"github.com/classlens-data/classlens/internal/engage"
	"github.com/classlens-data/classlens/internal/version"
	"github.com/classlens-data/classlens/internal/vision"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listenFlag = flag.String("listen", "", "HTTP listen address (overrides config)")
	dbFlag     = flag.String("db", "", "Path to the SQLite database file (overrides config)")
	modelsFlag = flag.String("models", "", "Directory with trained engagement models (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.EmptyAppConfig()
	if *configPath != "" {
		loaded, err := config.LoadAppConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	if *listenFlag != "" {
		cfg.Listen = listenFlag
	}
	if *dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if *modelsFlag != "" {
		cfg.ModelDir = modelsFlag
	}

	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath())
		return
	}

	log.Printf("%s starting", version.String())

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// A missing model directory is not fatal: the server still tracks
	// students and extracts features, it just cannot predict.
	classifier := engage.NewEngagementClassifier(engage.DefaultBoosterConfig())
	if err := classifier.Load(cfg.GetModelDir()); err != nil {
		log.Printf("no trained models loaded from %s: %v (predictions disabled)", cfg.GetModelDir(), err)
		classifier = nil
	}

	detectors := buildDetectors(cfg)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)

		apiMux := api.NewServer(database, classifier, cfg, detectors).ServeMux()
		mux.Handle("/api/", apiMux)

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// buildDetectors assembles the per-request detector set from configured
// model paths. Namespaces without an installed adapter fall back to static
// defaults so the feature key layout stays identical either way.
func buildDetectors(cfg *config.AppConfig) func() []engage.Detector {
	facePath := cfg.GetFaceModelPath()
	phonePath := cfg.GetPhoneModelPath()
	minConfidence := cfg.GetMinConfidence()

	return func() []engage.Detector {
		var detectors []engage.Detector

		if facePath != "" {
			faceCfg := vision.DefaultFacialConfig(facePath)
			faceCfg.ScoreThreshold = float32(minConfidence)
			facial, err := vision.NewFacialDetector(faceCfg)
			if err != nil {
				log.Printf("facial detector unavailable: %v", err)
			} else {
				detectors = append(detectors, facial)
			}
			pose, err := vision.NewPoseDetector(facePath)
			if err != nil {
				log.Printf("pose detector unavailable: %v", err)
			} else {
				detectors = append(detectors, pose)
			}
		}
		if phonePath != "" {
			phone, err := vision.NewPhoneDetector(phonePath)
			if err != nil {
				log.Printf("phone detector unavailable: %v", err)
			} else {
				detectors = append(detectors, phone)
			}
		}

		return withDefaultDetectors(detectors)
	}
}

// withDefaultDetectors backfills any missing namespace with a static
// detector that always reports the namespace defaults.
func withDefaultDetectors(detectors []engage.Detector) []engage.Detector {
	present := make(map[string]bool, len(detectors))
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
		if present[ns] {
			continue
		}
		fm := defaults[ns]()
		detectors = append(detectors, engage.NewStaticDetector(ns, fm, fm))
	}
	return detectors
}
