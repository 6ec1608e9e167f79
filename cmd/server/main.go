package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"motion-scorer/internal/analysis"
	"motion-scorer/internal/calories"
	"motion-scorer/internal/dtw"
	"motion-scorer/internal/pipeline"
	"motion-scorer/internal/platform/config"
	"motion-scorer/internal/platform/logger"
	"motion-scorer/internal/platform/metrics"
	"motion-scorer/internal/pose"
	"motion-scorer/internal/reference"
	"motion-scorer/internal/video"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	corpusDir := config.GetEnv("CORPUS_DIR", "./data")
	corpusSuffix := config.GetEnv("CORPUS_SUFFIX", reference.DefaultSuffix)
	radius := config.GetEnvInt("DTW_RADIUS", dtw.DefaultRadius)
	workers := config.GetEnvInt("COMPARE_WORKERS", 0)
	metTablePath := config.GetEnv("MET_TABLE_PATH", "")
	workerCmd := config.GetEnv("POSE_WORKER_CMD", "pose-worker")
	detectionConf := config.GetEnvFloat("POSE_MIN_DETECTION_CONFIDENCE", pose.DefaultConfidence)
	trackingConf := config.GetEnvFloat("POSE_MIN_TRACKING_CONFIDENCE", pose.DefaultConfidence)
	databaseURL := config.GetEnv("DATABASE_URL", "")
	maxUploadMB := config.GetEnvInt("MAX_UPLOAD_MB", analysis.DefaultMaxUploadBytes>>20)

	log := logger.New(logLevel, logFormat)

	corpus, err := reference.NewHolder(func() (*reference.Library, error) {
		return reference.Load(corpusDir, corpusSuffix, log)
	}, log)
	if err != nil {
		log.Error("reference corpus load failed", "corpus_dir", corpusDir, "error", err)
		os.Exit(1)
	}

	engine, err := dtw.NewEngine(radius)
	if err != nil {
		log.Error("invalid DTW_RADIUS", "error", err)
		os.Exit(1)
	}

	estimator, err := calories.LoadEstimator(metTablePath)
	if err != nil {
		log.Error("MET table load failed", "error", err)
		os.Exit(1)
	}

	cmdParts := strings.Fields(workerCmd)
	if len(cmdParts) == 0 {
		log.Error("POSE_WORKER_CMD is empty")
		os.Exit(1)
	}
	detectors, err := pose.NewProcessDetectorFactory(pose.WorkerConfig{
		Command:                cmdParts[0],
		Args:                   cmdParts[1:],
		MinDetectionConfidence: detectionConf,
		MinTrackingConfidence:  trackingConf,
	}, log)
	if err != nil {
		log.Error("pose worker config invalid", "error", err)
		os.Exit(1)
	}

	var repo analysis.Repository = analysis.NewInMemoryRepository()
	if databaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		store, err := analysis.NewPostgresStore(ctx, databaseURL)
		cancel()
		if err != nil {
			log.Error("result store unavailable", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		repo = analysis.NewRepositoryWithStore(store)
	}

	met := metrics.New()
	pipe := pipeline.New(pose.NewExtractor(detectors, log), corpus, engine, estimator, workers, log)
	svc := analysis.NewService(pipe, video.OpenSource, corpus, repo, log, met)
	h := analysis.NewHandler(svc, log, int64(maxUploadMB)<<20)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetReferenceSequences(corpus.Library().SequenceCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	lib := corpus.Library()
	log.Info("server starting",
		"port", port,
		"corpus_dir", corpusDir,
		"corpus_version", lib.Version(),
		"reference_sequences", lib.SequenceCount(),
		"dtw_radius", engine.Radius(),
		"log_level", logLevel,
		"persistent_store", databaseURL != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		if sum, err := svc.ReloadReferences(); err == nil {
			log.Info("reference corpus reloaded on SIGHUP",
				"corpus_version", sum.Version,
				"reference_sequences", sum.Sequences)
		}
	}

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
