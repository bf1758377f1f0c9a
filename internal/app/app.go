package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cheggaaa/pb/v3"
	"github.com/joho/godotenv"

	"github.com/Binz120/OpenBullet2/internal/app/version"
	"github.com/Binz120/OpenBullet2/internal/checks"
	"github.com/Binz120/OpenBullet2/internal/config"
	"github.com/Binz120/OpenBullet2/internal/database"
	"github.com/Binz120/OpenBullet2/internal/datapool"
	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/jobs/engine"
	"github.com/Binz120/OpenBullet2/internal/output"
	"github.com/Binz120/OpenBullet2/internal/proxies"
	"github.com/Binz120/OpenBullet2/internal/support"
)

const titleRefreshInterval = 250 * time.Millisecond

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Falling back to system environment variables.")
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.ShowVersion {
		fmt.Println(version.Get())
		return nil
	}

	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := config.ReadSettings(opts.SettingsFile); err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	cfg := config.GetConfig()

	checkCfg, err := checks.LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	check := checks.NewHTTPCheck(checkCfg)

	wordlistType, err := datapool.LookupWordlistType(opts.WordlistType)
	if err != nil {
		return err
	}
	pool, err := datapool.Open(opts.WordlistFile, wordlistType)
	if err != nil {
		return err
	}
	if closer, ok := pool.(io.Closer); ok {
		defer closer.Close()
	}

	proxyType, proxyMode, err := resolveProxySettings(opts, cfg)
	if err != nil {
		return err
	}

	registry, err := buildProxyRegistry(opts, cfg, proxyType)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(cfg)
	defer closeSinks(sinks)
	if err != nil {
		return err
	}

	answers := promptCustomInputs(os.Stdin, os.Stdout, check.CustomInputs())

	job := engine.NewJob(engine.Options{
		Bots:                     resolveBots(opts, cfg),
		ProxyMode:                proxyMode,
		Skip:                     opts.Skip,
		TaskTimeout:              cfg.TaskTimeout(),
		ReloadProxiesWhenAllDead: cfg.Job.ReloadProxiesWhenAllDead,
		ProxyReloadInterval:      cfg.ProxyReloadInterval(),
		CustomInputs:             answers,
	}, pool, check, sinks, registry)

	out := console{out: os.Stdout, verbose: opts.Verbose}
	runErr := runJob(job, out, cfg.Job.EventBuffer, checkCfg.Metadata.Name, opts.WordlistFile)

	if cfg.Output.Database.Enabled {
		// flush queued hits before counting them
		if err := sinks.Close(); err != nil {
			log.Warn("Failed to close outputs", "error", err)
		}
		reportStoredHits(context.Background(), job.ID)
	}
	return runErr
}

func reportStoredHits(ctx context.Context, jobID string) {
	counts, err := database.CountHitsByStatus(ctx, jobID)
	if err != nil {
		log.Warn("Failed to count stored hits", "job", jobID, "error", err)
		return
	}

	args := []any{"job", jobID}
	for _, status := range sortedKeys(counts) {
		args = append(args, strings.ToLower(status), counts[status])
	}
	log.Info("Hits stored in database", args...)
}

func sortedKeys(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func runJob(job *engine.Job, out console, eventBuffer int, configName, wordlist string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := job.Events(eventBuffer)
	go handleSignals(ctx, job)

	if err := job.Start(ctx); err != nil {
		return err
	}

	bar := newProgressBar(job.Snapshot(), os.Stderr)
	bar.Start()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		refreshProgress(ctx, job, bar, configName, wordlist)
	}()

	for ev := range events {
		out.handle(ev)
	}

	err := job.Wait(context.Background())
	cancel()
	<-progressDone

	snap := job.Snapshot()
	bar.SetCurrent(snap.Tested)
	bar.Finish()
	out.printSummary(snap)

	if dropped := snap.DroppedEvents; dropped > 0 {
		log.Warn("Some events were not printed", "dropped", dropped)
	}
	return err
}

func newProgressBar(snap engine.Snapshot, w io.Writer) *pb.ProgressBar {
	bar := pb.New64(0)
	if snap.ProgressKnown {
		bar.SetTotal(snap.Size)
	}
	bar.SetWriter(w)
	bar.Set("prefix", "Checking ")
	return bar
}

func refreshProgress(ctx context.Context, job *engine.Job, bar *pb.ProgressBar, configName, wordlist string) {
	ticker := time.NewTicker(titleRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-job.Done():
			return
		case <-ticker.C:
			snap := job.Snapshot()
			bar.SetCurrent(snap.Tested)
			bar.Set("prefix", fmt.Sprintf("%s | CPM %d | Hits %d ", snap.State, snap.CPM, snap.Hits))
			setTerminalTitle(titleLine(snap, configName, wordlist))
		}
	}
}

func setTerminalTitle(title string) {
	fmt.Fprintf(os.Stdout, "\033]0;%s\007", title)
}

// handleSignals stops the job on the first interrupt and aborts it on the
// second.
func handleSignals(ctx context.Context, job *engine.Job) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	interrupts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-job.Done():
			return
		case <-signals:
			interrupts++
			if interrupts == 1 {
				log.Warn("Stopping, waiting for running checks. Press Ctrl+C again to abort.")
				if err := job.Stop(); err != nil {
					log.Warn("Failed to stop job", "error", err)
				}
				continue
			}
			log.Warn("Aborting running checks.")
			if err := job.Abort(); err != nil {
				log.Warn("Failed to abort job", "error", err)
			}
			return
		}
	}
}

func buildProxyRegistry(opts cliOptions, cfg config.Config, proxyType domain.ProxyType) (*proxies.Registry, error) {
	var sources []proxies.Source

	if opts.ProxyFile != "" {
		sources = append(sources, proxies.FileSource{Path: opts.ProxyFile, DefaultType: proxyType})
	}

	if cfg.Proxies.RedisEnabled {
		client, err := support.GetRedisClient(support.GetEnv("OB_REDIS_URL", cfg.Output.Redis.URL))
		if err != nil {
			return nil, fmt.Errorf("redis proxy source: %w", err)
		}
		sources = append(sources, proxies.RedisSource{Client: client, Key: cfg.Proxies.RedisKey, DefaultType: proxyType})
	}

	return proxies.NewRegistry(int(cfg.Proxies.MaxUsesPerProxy), sources...), nil
}

// buildSinks returns every sink built so far, even on error, so the caller can
// close them.
func buildSinks(cfg config.Config) (output.Multi, error) {
	statuses := cfg.Output.Statuses
	sinks := output.Multi{output.NewFileSystemSink(cfg.Output.HitsDirectory, statuses)}

	if db := cfg.Output.Database; db.Enabled {
		dialector, err := database.OpenDialector(db.Driver, support.GetEnv("OB_DB_DSN", db.DSN))
		if err != nil {
			return sinks, err
		}
		if _, err := database.SetupDB(database.WithDialector(dialector)); err != nil {
			return sinks, err
		}
		sinks = append(sinks, output.NewDatabaseSink(output.DatabaseSinkOptions{
			Statuses:      statuses,
			BatchSize:     db.BatchSize,
			FlushInterval: cfg.HitFlushInterval(),
		}))
	}

	if rc := cfg.Output.Redis; rc.Enabled {
		client, err := support.GetRedisClient(support.GetEnv("OB_REDIS_URL", rc.URL))
		if err != nil {
			return sinks, fmt.Errorf("redis output: %w", err)
		}
		sinks = append(sinks, output.NewRedisSink(client, rc.Key, rc.Channel, statuses))
	}

	return sinks, nil
}

func closeSinks(sinks output.Multi) {
	if err := sinks.Close(); err != nil {
		log.Warn("Failed to close outputs", "error", err)
	}
	if err := database.Close(); err != nil {
		log.Warn("Failed to close database", "error", err)
	}
	if err := support.CloseRedisClients(); err != nil {
		log.Warn("Failed to close redis clients", "error", err)
	}
}
