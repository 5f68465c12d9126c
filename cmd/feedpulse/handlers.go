package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/feedpulse/internal/config"
	"github.com/elonfeng/feedpulse/internal/scheduler"
	"github.com/elonfeng/feedpulse/internal/store"
	"github.com/elonfeng/feedpulse/internal/watch"
	"github.com/elonfeng/feedpulse/pkg/alert"
	"github.com/elonfeng/feedpulse/pkg/arousal"
	"github.com/elonfeng/feedpulse/pkg/cache"
	"github.com/elonfeng/feedpulse/pkg/cache/prom"
	"github.com/elonfeng/feedpulse/pkg/classifier"
	"github.com/elonfeng/feedpulse/pkg/document"
	"github.com/elonfeng/feedpulse/pkg/identity"
	"github.com/elonfeng/feedpulse/pkg/numeric"
	"github.com/elonfeng/feedpulse/pkg/reconcile"
	"github.com/elonfeng/feedpulse/pkg/server"
	"github.com/elonfeng/feedpulse/pkg/toxicity"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(lc config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	db        *store.SQLiteStore
	registry  *prometheus.Registry
	metrics   *prom.Adapter
	persisted *cache.Persisted
	toxicity  *toxicity.Scorer
	arousal   *arousal.Scorer
	emotions  *store.EmotionTags
	alerts    *alert.Manager
	alertHook *alert.Hook
	client    *http.Client
}

func buildApp(cfg *config.Config) (*app, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prom.New(reg, "feedpulse")

	persisted := cache.NewPersisted(db, cache.PersistedOptions{
		Name:       "lowscore",
		StorageKey: cfg.Cache.StorageKey,
		TTL:        cfg.Cache.ParseTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		Metrics:    metrics,
	})

	client := &http.Client{Timeout: cfg.Fetch.ParseTimeout()}

	a := &app{
		cfg:       cfg,
		db:        db,
		registry:  reg,
		metrics:   metrics,
		persisted: persisted,
		emotions:  store.NewEmotionTags(db),
		client:    client,
	}
	a.toxicity = toxicity.NewScorer(buildClassifier(cfg.Classifier),
		cache.NewTiered("toxicity", cache.NewMemory(), nil, metrics))
	a.arousal = arousal.NewScorer(
		arousal.NewHTTPFetcher(client, cfg.Fetch.UserAgent, cfg.Fetch.Cookie),
		cache.NewTiered("lowscore", cache.NewMemory(), persisted, metrics),
		arousal.WithScoreCache(cache.NewTiered("arousal", cache.NewMemory(), nil, metrics)),
	)
	a.alerts = buildAlertManager(cfg)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func buildClassifier(cc config.ClassifierConfig) *toxicity.Lazy {
	if !cc.Enabled {
		return nil
	}
	opt := classifier.Options{
		Enabled:  cc.Enabled,
		Provider: cc.Provider,
		Model:    cc.Model,
		APIKey:   cc.APIKey,
		BaseURL:  cc.BaseURL,
		Timeout:  cc.ParseTimeout(),
	}
	fmt.Fprintf(os.Stderr, "toxicity classifier: %s/%s\n", cc.Provider, cc.Model)
	return toxicity.NewLazy(func(ctx context.Context) (classifier.Classifier, error) {
		return classifier.New(ctx, opt)
	})
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func (a *app) buildLoop(doc document.Document) *reconcile.Loop {
	a.alertHook = alert.NewHook(a.alerts, a.cfg.Alerts.Threshold, a.toxicity)
	guard := reconcile.NewGuard(a.arousal, a.emotions)
	return reconcile.New(doc, a.toxicity, a.arousal,
		reconcile.WithHooks(a.alertHook),
		reconcile.WithGuard(guard),
	)
}

func (a *app) loader() *document.Loader {
	return document.NewLoader(a.client, a.cfg.Fetch.UserAgent, a.cfg.Document.ItemSelector)
}

func (a *app) initialSnapshot(ctx context.Context, src sourceFlags) (*document.Snapshot, error) {
	switch {
	case src.file != "":
		base := src.baseURL
		if base == "" {
			base = a.cfg.Document.BaseURL
		}
		return document.ParseFile(src.file, base, a.cfg.Document.ItemSelector)
	case src.pageURL != "":
		return a.loader().Page(ctx, src.pageURL)
	default:
		return a.loader().Feed(ctx, src.feedURL)
	}
}

type scanRow struct {
	Key           string   `json:"key"`
	Toxicity      *float64 `json:"toxicity"`
	ToxicityLevel string   `json:"toxicity_level,omitempty"`
	Arousal       *float64 `json:"arousal"`
	ArousalLevel  string   `json:"arousal_level,omitempty"`
}

func runScan(ctx context.Context, src sourceFlags, jsonOutput, explain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.initialSnapshot(ctx, src)
	if err != nil {
		return err
	}

	loop := a.buildLoop(snap)
	stats := loop.Scan(ctx)
	loop.Wait()
	a.alertHook.Wait()

	fmt.Fprintf(os.Stderr, "scanned %d items (%d injected, %d unresolved)\n",
		stats.Items, stats.Injected, stats.Unresolved)

	if explain {
		return printBreakdowns(ctx, a, snap)
	}

	keys := loop.Keys()
	sort.Strings(keys)
	rows := make([]scanRow, 0, len(keys))
	for _, k := range keys {
		row := scanRow{Key: k}
		tox, aro, okTox, okAro := loop.Lookup(k)
		if okTox {
			row.Toxicity = &tox
			row.ToxicityLevel = string(numeric.LevelOf(tox))
		}
		if okAro {
			row.Arousal = &aro
			row.ArousalLevel = string(numeric.LevelOf(aro))
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("no items found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTOXICITY\tAROUSAL")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Key, formatScore(r.Toxicity), formatScore(r.Arousal))
	}
	return w.Flush()
}

// printBreakdowns writes one JSON line per resolved item. Concentrations
// come from the cache filled by the scan.
func printBreakdowns(ctx context.Context, a *app, snap *document.Snapshot) error {
	resolver := identity.NewResolver()
	enc := json.NewEncoder(os.Stdout)
	for _, item := range snap.Items() {
		key := resolver.Resolve(snap, item)
		if key == "" {
			continue
		}
		if err := enc.Encode(a.arousal.Explain(ctx, item, key, document.ExtractText(item))); err != nil {
			return err
		}
	}
	return nil
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d%% (%s)", numeric.Percent(*v), numeric.LevelOf(*v))
}

func runWatch(ctx context.Context, src sourceFlags, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snap, err := a.initialSnapshot(ctx, src)
	if err != nil {
		return err
	}
	live := document.NewLive(snap)
	loop := a.buildLoop(live)
	loop.Trigger(ctx)

	base := src.baseURL
	if base == "" {
		base = cfg.Document.BaseURL
	}

	if port == 0 {
		port = cfg.Server.Port
	}
	srv := server.New(loop, a.emotions, a.registry, port)

	fmt.Fprintf(os.Stderr, "watching %s\n", src.file)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watch.Watch(gctx, src.file, base, cfg.Document.ItemSelector, func(s *document.Snapshot) {
			live.Replace(s)
			loop.Trigger(gctx)
		})
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	err = g.Wait()
	loop.Wait()
	a.alertHook.Wait()
	return err
}

func runDaemon(ctx context.Context, src sourceFlags, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var fetch scheduler.Fetcher
	if src.pageURL != "" {
		fetch = scheduler.PageFetcher(a.loader(), src.pageURL)
	} else {
		fetch = scheduler.FeedFetcher(a.loader(), src.feedURL)
	}

	live := document.NewLive(nil)
	loop := a.buildLoop(live)
	sched := scheduler.New(fetch, live, loop, a.persisted, cfg.Schedule.ParsePollInterval(), time.Hour)

	if port == 0 {
		port = cfg.Server.Port
	}
	srv := server.New(loop, a.emotions, a.registry, port)

	fmt.Fprintf(os.Stderr, "feedpulse running (poll every %s)\n", cfg.Schedule.ParsePollInterval())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	err = g.Wait()
	loop.Wait()
	a.alertHook.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runCacheStats(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.persisted.Load(ctx); err != nil {
		return err
	}
	entries := a.persisted.Entries()

	var oldest, newest time.Time
	for _, e := range entries {
		at := e.ComputedAt()
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
		if at.After(newest) {
			newest = at
		}
	}

	records, err := a.db.Records(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "entries:\t%s / %s\n", humanize.Comma(int64(len(entries))), humanize.Comma(int64(a.persisted.MaxEntries())))
	fmt.Fprintf(w, "ttl:\t%s\n", a.persisted.TTL())
	if len(entries) > 0 {
		fmt.Fprintf(w, "oldest:\t%s\n", humanize.Time(oldest))
		fmt.Fprintf(w, "newest:\t%s\n", humanize.Time(newest))
	}
	for _, r := range records {
		fmt.Fprintf(w, "record %s:\t%s, updated %s\n", r.Key, humanize.Bytes(uint64(len(r.Value))), humanize.Time(r.UpdatedAt))
	}
	return w.Flush()
}

func runCachePrune(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dropped, err := a.persisted.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d entries (%d remaining)\n", dropped, a.persisted.Len())
	return nil
}
