// Command corpusbuild turns a folder of labelled exercise videos into the
// reference corpus read by the server.
//
//	corpusbuild -dataset ./videos -out ./data -worker "python3 pose_worker.py"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"motion-scorer/internal/platform/config"
	"motion-scorer/internal/platform/logger"
	"motion-scorer/internal/pose"
	"motion-scorer/internal/reference"
	"motion-scorer/internal/video"
)

func main() {
	_ = config.Load()

	dataset := flag.String("dataset", "", "Folder with one sub-folder of videos per exercise")
	out := flag.String("out", config.GetEnv("CORPUS_DIR", "./data"), "Output corpus folder")
	suffix := flag.String("suffix", config.GetEnv("CORPUS_SUFFIX", reference.DefaultSuffix), "Suffix appended to each exercise folder")
	version := flag.String("version", "", "Corpus version written to VERSION (default: UTC timestamp)")
	writeCSV := flag.Bool("csv", false, "Also write a .csv copy of every array")
	worker := flag.String("worker", config.GetEnv("POSE_WORKER_CMD", "pose-worker"), "Pose worker command line")
	detectionConf := flag.Float64("min-detection-confidence", config.GetEnvFloat("POSE_MIN_DETECTION_CONFIDENCE", pose.DefaultConfidence), "Pose detection threshold")
	trackingConf := flag.Float64("min-tracking-confidence", config.GetEnvFloat("POSE_MIN_TRACKING_CONFIDENCE", pose.DefaultConfidence), "Pose tracking threshold")
	logLevel := flag.String("log-level", config.GetEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	if *dataset == "" {
		flag.Usage()
		os.Exit(1)
	}

	log := logger.NewWithWriter(os.Stderr, *logLevel, "text")

	parts := strings.Fields(*worker)
	if len(parts) == 0 {
		log.Error("worker command is empty")
		os.Exit(1)
	}
	detectors, err := pose.NewProcessDetectorFactory(pose.WorkerConfig{
		Command:                parts[0],
		Args:                   parts[1:],
		MinDetectionConfidence: *detectionConf,
		MinTrackingConfidence:  *trackingConf,
	}, log)
	if err != nil {
		log.Error("pose worker config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := reference.NewBuilder(pose.NewExtractor(detectors, log), video.OpenSource, log)
	report, err := b.Build(ctx, *dataset, *out, reference.BuildOptions{
		Suffix:   *suffix,
		Version:  *version,
		WriteCSV: *writeCSV,
	})
	if err != nil {
		log.Error("corpus build failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d reference sequences for %d exercises to %s (version %s, %d clips skipped)\n",
		report.Written, report.Exercises, *out, report.Version, report.Skipped)
}
