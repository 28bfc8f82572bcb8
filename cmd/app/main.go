package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/newsdigest/internal/ai"
	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/classify"
	"github.com/local/newsdigest/internal/command"
	cfgpkg "github.com/local/newsdigest/internal/config"
	"github.com/local/newsdigest/internal/docsource"
	"github.com/local/newsdigest/internal/extractor"
	"github.com/local/newsdigest/internal/imagerender"
	logpkg "github.com/local/newsdigest/internal/logger"
	"github.com/local/newsdigest/internal/metrics"
	"github.com/local/newsdigest/internal/ocr"
	"github.com/local/newsdigest/internal/orchestrator"
	"github.com/local/newsdigest/internal/pipeline"
	"github.com/local/newsdigest/internal/queue"
	"github.com/local/newsdigest/internal/statuscheck"
	"github.com/local/newsdigest/internal/store"
	"github.com/local/newsdigest/internal/textquality"
	"github.com/local/newsdigest/internal/worker"
)

func main() {
	cfg := cfgpkg.FromEnv()
	var fileErr error
	if cfg.File != "" {
		fileErr = cfgpkg.ApplyFile(&cfg, cfg.File)
	}

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Environment:  cfg.Logging.Environment,
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()
	if fileErr != nil {
		log.Warn().Err(fileErr).Str("file", cfg.File).Msg("config overlay not applied")
	}

	metrics.Init()

	ctx := context.Background()
	rdb, err := store.Connect(ctx, cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	rq, err := queue.NewRedisQueue(ctx, rdb, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init job queue")
	}
	status := store.NewRedisStatus(rdb)
	articles := store.NewArticleStore(rdb, 0)

	// Text layer
	scripts, err := textquality.ParseRanges(cfg.Extraction.ScriptRanges)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TARGET_SCRIPT_RANGES")
	}
	runner := command.Exec{}
	tiers, skipped, err := extractor.TiersFromConfig(cfg.Extraction, runner)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid extraction tiers")
	}
	if len(skipped) > 0 {
		log.Warn().Strs("skipped", skipped).Msg("extraction tiers unavailable on this host")
	}
	text := extractor.New(textquality.NewScorer(textquality.NewAlphabet(scripts...)), tiers...)
	log.Info().Strs("tiers", text.Tiers()).Msg("text extractor ready")

	// Reconstruction and classification
	seg := article.Segmenter{
		HeightFactor:      cfg.Segment.HeadlineHeightFactor,
		MinHeadlineLength: cfg.Segment.MinHeadlineLength,
		MaxHeadlineLength: cfg.Segment.MaxHeadlineLength,
		MinBodyLength:     cfg.Segment.MinBodyLength,
	}
	var tess article.Recognizer
	if command.Available(cfg.OCR.Tesseract) {
		tess = ocr.New(cfg.OCR.Tesseract, cfg.OCR.Lang, cfg.OCR.TessdataDir, runner)
	}

	mode := cfg.Model.Reconstruction
	if mode == "" || mode == "auto" {
		mode = "heuristic"
		if cfg.Model.APIKey != "" {
			mode = "model"
		}
	}
	if mode != "heuristic" && cfg.Model.APIKey == "" {
		log.Fatal().Str("mode", mode).Msg("reconstruction mode needs MODEL_API_KEY")
	}

	var (
		modelPing statuscheck.Pinger
		recon     article.Reconstructor
		depts     classify.DepartmentClassifier = classify.KeywordDepartments{}
		sent      classify.SentimentClassifier  = classify.KeywordSentiment{}
	)
	if cfg.Model.APIKey != "" {
		fallbacks := map[string]string{}
		if cfg.Model.TextModel != cfg.Model.VisionModel {
			fallbacks[cfg.Model.TextModel] = cfg.Model.VisionModel
		}
		if cfg.Model.ClassifyModel != cfg.Model.TextModel {
			fallbacks[cfg.Model.ClassifyModel] = cfg.Model.TextModel
		}
		oc := ai.NewOpenAIClient(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.RequestTimeout)
		modelPing = oc
		client := ai.NewResilientClient(
			oc,
			ai.NewRedisBreaker(rdb, 0, 0),
			fallbacks,
		)
		cl := &ai.Classifier{Client: client, Model: cfg.Model.ClassifyModel, Focus: cfg.Model.Focus}
		depts = classify.ModelDepartments{Model: cl}
		sent = cl

		switch mode {
		case "layout":
			recon = article.NewHeuristicReconstructor(seg, tess, &ai.LayoutGrouper{Client: client, Model: cfg.Model.TextModel})
		case "heuristic":
			recon = article.NewHeuristicReconstructor(seg, tess, nil)
		default:
			recon = ai.NewReconstructor(client, cfg.Model.TextModel, cfg.Model.VisionModel, cfg.Model.Focus)
		}
	} else {
		recon = article.NewHeuristicReconstructor(seg, tess, nil)
		log.Warn().Msg("no model API key; using keyword classification")
	}
	log.Info().Str("mode", mode).Bool("ocr", tess != nil).Msg("article reconstruction ready")

	renderer := imagerender.New(cfg.Render.DPI, cfg.Render.MaxDimension, cfg.Render.JPEGQuality)
	renderer.Color = imagerender.ParseColorMode(cfg.Render.Color)

	pages := &pipeline.PageProcessor{
		Text:          text,
		Selector:      extractor.Selector{MinTextLength: cfg.Strategy.MinTextLength, MaxRatio: cfg.Strategy.MaxRatio},
		Renderer:      renderer,
		Reconstructor: recon,
	}
	machine := &pipeline.Machine{
		Extractor: &pipeline.DocumentProcessor{
			Pages:       pages,
			PageCount:   docsource.PageCount,
			Concurrency: cfg.Worker.PageConcurrency,
		},
		Departments:   depts,
		Sentiment:     sent,
		Clusterer:     classify.Clusterer{Eps: cfg.Cluster.Eps, MinSamples: cfg.Cluster.MinSamples, MaxFeatures: cfg.Cluster.MaxFeatures},
		Index:         articles,
		ClassifyLimit: 4,
	}

	fetcher := docsource.NewFetcher(docsource.Options{
		AWSRegion:    cfg.Storage.AWSRegion,
		AWSAccessKey: cfg.Storage.AWSAccessKey,
		AWSSecretKey: cfg.Storage.AWSSecretKey,
		Timeout:      cfg.Storage.DownloadTimeout,
	})

	// HTTP
	health := statuscheck.New(statuscheck.Options{
		Redis: rq,
		Model: modelPing,
		Tools: map[string]string{
			"pdftotext": cfg.Extraction.PdftotextBin,
			"mutool":    cfg.Extraction.MutoolBin,
			"ocr":       cfg.OCR.Tesseract,
		},
		Tiers: text.Tiers(),
	})
	orch := orchestrator.New(orchestrator.Dependencies{Queue: rq, Status: status, Results: articles, Index: articles, Health: health})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	// Worker (optional)
	var wk *worker.Worker
	if cfg.Worker.Enabled {
		wk = worker.New(worker.Config{
			Concurrency:    cfg.Worker.Concurrency,
			ConsumerPrefix: cfg.Worker.ConsumerPrefix,
			PollTimeout:    cfg.Queue.PollInterval,
		}, rq, fetcher, machine, status, articles)
		wk.Start()
	}

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if wk != nil {
		if err := wk.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("worker did not stop cleanly")
		}
	}
	log.Info().Msg("shutdown complete")
}
