// Package main implements the tripsift CLI: scan a photo library export and
// a mailbox export for evidence of past trips and print trip suggestions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/kvstore"
	"github.com/tripsift-dev/tripsift/pkg/tripsift"
)

var (
	photosPath     = flag.String("photos", "", "Path to photo library export (JSON)")
	emailsPath     = flag.String("emails", "", "Path to mailbox export (JSON)")
	mapsAPIKey     = flag.String("maps-key", "", "Google Maps API key (or set GOOGLE_MAPS_API_KEY)")
	geminiAPIKey   = flag.String("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	geminiModel    = flag.String("gemini-model", "gemini-2.5-flash-lite", "Gemini model to use (or set GEMINI_MODEL)")
	gcpProject     = flag.String("gcp-project", "", "GCP project ID (or set GCP_PROJECT)")
	cacheDir       = flag.String("cache-dir", "", "Cache directory (or set CACHE_DIR)")
	noCache        = flag.Bool("no-cache", false, "Disable caching")
	storePath      = flag.String("store", "", "Path to the suggestion store database (or set TRIPSIFT_STORE)")
	homeCountry    = flag.String("home", "", "Home country code to exclude, e.g. 'US'")
	excludeAlbums  = flag.String("exclude-albums", "", "Comma-separated album names to skip")
	excludeFolders = flag.String("exclude-folders", "", "Comma-separated mail folders to skip")
	jsonOutput     = flag.Bool("json", false, "Print the result as JSON")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	version        = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("tripsift CLI v1.0.0")
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *mapsAPIKey == "" {
		*mapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
	if *geminiAPIKey == "" {
		*geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if *geminiModel == "gemini-2.5-flash-lite" && os.Getenv("GEMINI_MODEL") != "" {
		*geminiModel = os.Getenv("GEMINI_MODEL")
	}
	if *gcpProject == "" {
		*gcpProject = os.Getenv("GCP_PROJECT")
	}
	if *cacheDir == "" {
		*cacheDir = os.Getenv("CACHE_DIR")
	}
	if *storePath == "" {
		*storePath = os.Getenv("TRIPSIFT_STORE")
	}

	if *photosPath == "" && *emailsPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] -photos <export.json> and/or -emails <export.json>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	scannerOpts := []tripsift.Option{
		tripsift.WithMapsAPIKey(*mapsAPIKey),
		tripsift.WithGeminiAPIKey(*geminiAPIKey),
		tripsift.WithGeminiModel(*geminiModel),
		tripsift.WithGCPProject(*gcpProject),
	}

	if *noCache {
		scannerOpts = append(scannerOpts, tripsift.WithNoCache())
	} else if *cacheDir != "" {
		scannerOpts = append(scannerOpts, tripsift.WithCacheDir(*cacheDir))
	}

	if *storePath != "" {
		store, err := kvstore.OpenSQLite(*storePath)
		if err != nil {
			logger.Error("failed to open suggestion store", "error", err, "path", *storePath)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close suggestion store", "error", err)
			}
		}()
		scannerOpts = append(scannerOpts, tripsift.WithStore(store))
	}

	opts := tripsift.ScanOptions{
		HomeCountryCode: *homeCountry,
		ExcludedAlbums:  splitList(*excludeAlbums),
		ExcludedFolders: splitList(*excludeFolders),
	}

	if *photosPath != "" {
		scannerOpts = append(scannerOpts, tripsift.WithPhotoSource(&photoFile{path: *photosPath}))
		opts.IncludePhotos = true
	}
	if *emailsPath != "" {
		scannerOpts = append(scannerOpts, tripsift.WithEmailSource(&emailFile{path: *emailsPath}))
		opts.IncludeEmails = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	scanner := tripsift.NewWithLogger(ctx, logger, scannerOpts...)
	defer func() {
		if err := scanner.Close(); err != nil {
			logger.Error("failed to close scanner", "error", err)
		}
	}()

	onProgress := func(step tripsift.Step, percent int, message string) {
		if *verbose {
			logger.Debug("progress", "step", step, "percent", percent, "message", message)
			return
		}
		fmt.Fprintf(os.Stderr, "\r\033[K[%s] %3d%% %s", step, percent, message)
		if step == tripsift.StepComplete {
			fmt.Fprintln(os.Stderr)
		}
	}

	result, err := scanner.Scan(ctx, opts, onProgress)
	if err != nil {
		cancel()
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(result)
		return
	}
	printResult(result)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
