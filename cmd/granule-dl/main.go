package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/geodata-tools/granule-dl/internal/auth"
	"github.com/geodata-tools/granule-dl/internal/config"
	"github.com/geodata-tools/granule-dl/internal/crypto"
	"github.com/geodata-tools/granule-dl/internal/fetch"
	"github.com/geodata-tools/granule-dl/internal/logging"
	"github.com/geodata-tools/granule-dl/internal/storage"
	"github.com/geodata-tools/granule-dl/internal/ui"
	"github.com/geodata-tools/granule-dl/internal/worker"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "granule-dl [urls...]",
		Short: "Download granules from a federated identity-aware backend",
		Long: `Fetches remote resources (http(s)://, s3://, file://) into a local
directory, authenticating HTTP downloads with a federated bearer credential
and retrying transient failures with exponential backoff.`,
		Version:       version,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.SetupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.Init(logging.Options{
		AppName: cfg.AppName,
		Level:   cfg.LogLevel,
		Text:    cfg.TextLogger,
	})
	log := logging.With("main")

	urls, err := collectURLs(cfg, args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs to download: pass them as arguments or via --file")
	}

	accessToken := cfg.AccessToken
	if cfg.TokenEncrypted && accessToken != "" {
		decrypter, err := crypto.NewDecrypter([]byte(cfg.SharedSecret))
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if accessToken, err = decrypter(accessToken); err != nil {
			return fmt.Errorf("failed to decrypt access token: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	policy := auth.NewHeaderPolicy(cfg.TrustedHosts, cfg.ClientID, cfg.ClientSecret)

	var exchanger *auth.Exchanger
	if cfg.UseExchange {
		exchanger = auth.NewExchanger(nil, cfg.AuthHost, cfg.RedirectURI, policy, cfg.FullUserAgent(version))
	}

	executor := fetch.NewExecutor(nil, policy, fetch.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}, cfg.RequestTimeout, cfg.PostURLLength)

	downloader := fetch.NewDownloader(executor, exchanger, fetch.Options{
		UseExchange:     cfg.UseExchange,
		FallbackEnabled: cfg.FallbackAuth,
		FallbackUser:    cfg.FallbackUser,
		FallbackPass:    cfg.FallbackPass,
		RequestID:       cfg.RequestID,
	})

	var store fetch.BlobStore
	if hasS3(urls) {
		s3Store, err := storage.New(ctx, storage.Options{
			Region:         cfg.Region,
			UseLocalstack:  cfg.UseLocalstack,
			LocalstackHost: cfg.LocalstackHost,
			StagingBucket:  cfg.StagingBucket,
			StagingPath:    cfg.StagingPath,
			Env:            cfg.Env,
			UserAgent:      cfg.FullUserAgent(version),
		})
		if err != nil {
			return fmt.Errorf("failed to build blob-store client: %w", err)
		}
		store = s3Store
	}

	localHostname := ""
	if cfg.UseLocalstack {
		localHostname = cfg.LocalstackHost
	}

	fetcher := fetch.NewFileFetcher(downloader, store, cfg.OutputDir,
		cfg.FullUserAgent(version), accessToken, localHostname)

	jobs := make([]worker.Job, 0, len(urls))
	for _, u := range urls {
		jobs = append(jobs, worker.Job{URL: u})
	}

	log.Info().Int("urls", len(urls)).Int("workers", cfg.Workers).Msg("starting downloads")
	start := time.Now()
	results := worker.NewPool(fetcher, cfg.Workers).Run(ctx, jobs)

	return printSummary(results, time.Since(start))
}

// collectURLs merges positional arguments with the optional URL file,
// preserving order and dropping duplicates and comments.
func collectURLs(cfg *config.Config, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" && !strings.HasPrefix(u, "#") && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, a := range args {
		add(a)
	}
	if cfg.URLFile != "" {
		data, err := os.ReadFile(cfg.URLFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read url file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			add(line)
		}
	}
	return urls, nil
}

func hasS3(urls []string) bool {
	for _, u := range urls {
		if strings.HasPrefix(strings.ToLower(u), "s3://") {
			return true
		}
	}
	return false
}

// printSummary renders the per-URL results and returns an error when any
// download failed, so the exit code reflects the batch outcome.
func printSummary(results []worker.Result, elapsed time.Duration) error {
	fmt.Println(ui.HeaderStyle.Render("Download summary"))

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("%s %s: %v\n", ui.ErrorStyle.Render("FAIL"), r.URL, r.Err)
		case r.Outcome.Kind == fetch.OutcomeSuccess:
			fmt.Printf("%s %s -> %s\n", ui.SuccessStyle.Render("OK  "), r.URL, r.Path)
		case r.Outcome.Kind == fetch.OutcomeConsentRequired:
			failed++
			fmt.Printf("%s %s: %s\n", ui.WarningStyle.Render("EULA"), r.URL, r.Outcome.Message)
		default:
			failed++
			fmt.Printf("%s %s: %s\n", ui.ErrorStyle.Render("FAIL"), r.URL, r.Outcome.Message)
		}
	}

	fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("%d ok, %d failed in %s",
		len(results)-failed, failed, elapsed.Round(time.Millisecond))))

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return nil
}
