package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/summarizer/internal/archive"
    "github.com/local/summarizer/internal/cleanup"
    cfgpkg "github.com/local/summarizer/internal/config"
    "github.com/local/summarizer/internal/llm"
    logpkg "github.com/local/summarizer/internal/logger"
    "github.com/local/summarizer/internal/metrics"
    "github.com/local/summarizer/internal/prompts"
    "github.com/local/summarizer/internal/segment"
    "github.com/local/summarizer/internal/server"
    "github.com/local/summarizer/internal/store"
    "github.com/local/summarizer/internal/transcript"
    "github.com/local/summarizer/internal/workflow"
)

func main() {
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    // Job cache
    reg, err := store.NewRegistry(cfg.Cache.Dir)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init job cache")
    }
    index := store.NewIndex(cfg.Cache.Dir)

    transcripts, err := transcript.NewStore(cfg.Cache.Dir)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init transcript store")
    }

    // Pipeline
    if cfg.OpenAI.APIKey == "" {
        log.Warn().Msg("OPENAI_API_KEY not set, summary requests will fail")
    }
    client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.RequestTimeout)

    var archiver workflow.Archiver
    if cfg.Archive.Bucket != "" {
        a, err := archive.NewS3Archiver(context.Background(), cfg.Archive.Bucket, cfg.Archive.Region, cfg.Archive.Prefix)
        if err != nil {
            log.Error().Err(err).Msg("archive disabled, s3 client init failed")
        } else {
            archiver = a
            log.Info().Str("bucket", cfg.Archive.Bucket).Msg("artifact archival enabled")
        }
    }

    runner := workflow.NewRunner(workflow.Dependencies{
        Registry: reg,
        Client:   client,
        Prompts:  prompts.NewFSSource(cfg.Prompts.Dir),
        Archiver: archiver,
    }, workflow.Options{
        QAModel:        cfg.Models.QAModel,
        QAEffort:       cfg.Models.QAEffort,
        OverviewModel:  cfg.Models.OverviewModel,
        OverviewEffort: cfg.Models.OverviewEffort,
        JudgeModel:     cfg.Models.JudgeModel,
        JudgeEffort:    cfg.Models.JudgeEffort,

        QAVersion:       cfg.Prompts.QAVersion,
        OverviewVersion: cfg.Prompts.OverviewVersion,
        JudgeVersion:    cfg.Prompts.JudgeVersion,

        FanOutDeadline:     cfg.Workflow.FanOutDeadline,
        RateLimitThreshold: cfg.Workflow.RateLimitThreshold,
        RateLimitBackoff:   cfg.Workflow.RateLimitBackoff,
    })

    // HTTP surface
    srv := server.New(server.Dependencies{
        Registry:    reg,
        Index:       index,
        Transcripts: transcripts,
        Segmenter:   segment.New(cfg.Cache.MaxUploadBytes),
        Runner:      runner,
        Versions:    cfg.Prompts,
    })
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)
    mux.Handle("/metrics", metrics.Handler())

    // Cleanup worker
    cleanupCtx, stopCleanup := context.WithCancel(context.Background())
    defer stopCleanup()
    worker := cleanup.NewWorker(reg, index, cleanup.Options{
        StartupDelay: cfg.Cache.CleanupDelay,
        Interval:     cfg.Cache.CleanupInterval,
        Retention:    time.Duration(cfg.Cache.RetentionDays) * 24 * time.Hour,
        ForceAfter:   time.Duration(cfg.Cache.ForceCleanupDays) * 24 * time.Hour,
    })
    go worker.Start(cleanupCtx)

    httpSrv := &http.Server{
        Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
        Handler: server.WithMiddleware(mux, cfg.Server.CORSOrigins),
    }

    go func(){
        log.Info().Msgf("HTTP server listening on :%d", cfg.Server.Port)
        if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    stopCleanup()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(ctx)
    fmt.Println("shutdown complete")
}
