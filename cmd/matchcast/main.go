package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovrbk/matchcast/internal/catalog"
	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/config"
	"github.com/ovrbk/matchcast/internal/detect"
	"github.com/ovrbk/matchcast/internal/gdrive"
	"github.com/ovrbk/matchcast/internal/llm"
	"github.com/ovrbk/matchcast/internal/narrate"
	"github.com/ovrbk/matchcast/internal/pipeline"
	"github.com/ovrbk/matchcast/internal/ratelimit"
	"github.com/ovrbk/matchcast/internal/server"
	"github.com/ovrbk/matchcast/internal/speech"
	"github.com/ovrbk/matchcast/internal/teamdata"
	"github.com/ovrbk/matchcast/internal/video"
)

func main() {
	log.Println("matchcast: starting")

	configPath := flag.String("config", "matchcast.yaml", "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.NewSQLiteCatalog(cfg.DBPath)
	if err != nil {
		log.Fatalf("catalog init failed: %v", err)
	}
	defer func() { _ = cat.Close() }()

	hub := server.NewHub()
	tools := video.NewTools(cfg.FFmpegPath, cfg.FFprobePath)
	splitter := video.NewSplitter(tools, cfg.OutputDir+"/clips")
	limiter := ratelimit.NewLimiter(cfg.RequestsPerMinute, cfg.ParsedSafetyBuffer())
	teamManager := teamdata.NewManager(cfg.DataDir)

	limits := commentary.Limits{
		MinGap:         cfg.MinGap,
		MinDuration:    cfg.MinDuration,
		MaxDuration:    cfg.MaxDuration,
		WordsPerSecond: cfg.WordsPerSecond,
	}

	var analyzer server.Analyzer
	detector, narrator, synth := buildCollaborators(ctx, cfg, limits, limiter, teamManager)
	if detector != nil && narrator != nil && synth != nil {
		analyzer = &analyzeRunner{
			pipeline: pipeline.New(detector, narrator, synth, tools, splitter, cat, pipeline.Config{
				SegmentSeconds:       cfg.SegmentSeconds,
				ChunkTolerance:       cfg.ChunkTolerance,
				MaxSynthesisParallel: cfg.MaxSynthesisParallel,
				OutputDir:            cfg.OutputDir,
				BaseURL:              cfg.BaseURL,
			}),
			uploader: buildUploader(ctx, cfg),
		}
	} else {
		log.Printf("warning: analysis disabled, serving session history only")
	}

	handler := server.Handler(server.Deps{
		Hub:       hub,
		Catalog:   cat,
		Analyzer:  analyzer,
		Teamdata:  teamManager,
		VideosDir: cfg.VideosDir,
		OutputDir: cfg.OutputDir,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		log.Printf("matchcast: listening on http://%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("matchcast: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func buildCollaborators(ctx context.Context, cfg config.Config, limits commentary.Limits, limiter *ratelimit.Limiter, teamManager *teamdata.Manager) (pipeline.Detector, pipeline.Narrator, pipeline.Synthesizer) {
	if cfg.GeminiAPIKey == "" || cfg.OpenAIAPIKey == "" {
		return nil, nil, nil
	}

	detector, err := detect.New(ctx, cfg.GeminiAPIKey, cfg.DetectionModel, limiter)
	if err != nil {
		log.Printf("warning: detection client unavailable: %v", err)
		return nil, nil, nil
	}

	provider, modelName, err := llm.ParseModel(cfg.NarrationModel)
	if err != nil {
		log.Printf("warning: invalid narration model: %v", err)
		return nil, nil, nil
	}
	narrationKey := map[string]string{
		"gemini":    cfg.GeminiAPIKey,
		"openai":    cfg.OpenAIAPIKey,
		"anthropic": cfg.AnthropicAPIKey,
	}[provider]
	if narrationKey == "" {
		log.Printf("warning: no API key for narration provider %q", provider)
		return nil, nil, nil
	}

	llmClient, err := llm.NewClient(provider, narrationKey, modelName, llm.WithJSONMode())
	if err != nil {
		log.Printf("warning: narration client unavailable: %v", err)
		return nil, nil, nil
	}

	narrator := narrate.New(llmClient, narrate.Mode(cfg.NarrationMode), limits, limiter)
	if mc, ok, err := teamManager.Load(); err != nil {
		log.Printf("warning: load match context: %v", err)
	} else if ok {
		narrator.SetMatchContext(teamdata.FormatForPrompt(mc))
	}

	return detector, narrator, speech.New(cfg.OpenAIAPIKey, cfg.SpeechVoices)
}

func buildUploader(ctx context.Context, cfg config.Config) *gdrive.Uploader {
	if cfg.GDriveFolderID == "" {
		return nil
	}
	uploader, err := gdrive.NewUploader(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
	if err != nil {
		log.Printf("warning: gdrive upload disabled: %v", err)
		return nil
	}
	return uploader
}

// analyzeRunner runs the pipeline for one request, then uploads the final
// video in the background when Drive is configured.
type analyzeRunner struct {
	pipeline *pipeline.Pipeline
	uploader *gdrive.Uploader
}

func (a *analyzeRunner) Analyze(ctx context.Context, sessionID, videoPath string, emit pipeline.Emitter) (*pipeline.Result, error) {
	result, err := a.pipeline.Analyze(ctx, sessionID, videoPath, emit)
	if err != nil {
		return nil, err
	}

	if a.uploader != nil {
		go func() {
			uploadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := a.uploader.Upload(uploadCtx, result.FinalVideo, sessionID); err != nil {
				log.Printf("gdrive upload error: %v", err)
			} else {
				log.Printf("gdrive: uploaded session %s", sessionID)
			}
		}()
	}

	return result, nil
}
