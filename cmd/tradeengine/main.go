package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"rsibot/config"
	"rsibot/internal/api"
	"rsibot/internal/engine"
	"rsibot/internal/execution"
	"rsibot/internal/logger"
	"rsibot/internal/marketdata/agg"
	"rsibot/internal/marketdata/bus"
	"rsibot/internal/marketdata/ws"
	"rsibot/internal/metrics"
	"rsibot/internal/model"
	"rsibot/internal/notification"
	"rsibot/internal/sink"
	"rsibot/pkg/capital"
)

const (
	demoStreamURL = "wss://demo-api-streaming-capital.backend-capital.com/connect"
	liveStreamURL = "wss://api-streaming-capital.backend-capital.com/connect"
)

func main() {
	logger.Init("tradeengine", slog.LevelInfo)
	slog.Info("starting")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Venue session ----
	client := capital.NewClient(capital.Config{
		APIKey:     cfg.CapitalAPIKey,
		Demo:       cfg.CapitalDemo,
		TOTPSecret: cfg.CapitalTOTPSecret,
	})
	client.SessionExpiryHook = func() { health.SetSessionOK(false) }

	sess, err := client.CreateSession(cfg.CapitalIdentifier, cfg.CapitalPassword)
	if err != nil {
		slog.Error("session create failed", slog.Any("error", err))
		os.Exit(1)
	}
	health.SetSessionOK(true)
	slog.Info("session established", slog.Bool("demo", cfg.CapitalDemo))

	balance, err := client.PreferredBalance(sess)
	if err != nil {
		slog.Error("balance fetch failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("account balance", slog.Float64("balance", balance))

	// ---- History warm-up ----
	history, err := client.Prices(sess, cfg.Epic, cfg.Resolution, cfg.Strategy.Period+1)
	if err != nil {
		slog.Warn("history fetch failed, warming up from live bars", slog.Any("error", err))
	}

	// ---- Executor (venue or paper) ----
	var journal *execution.Journal
	if cfg.SQLitePath != "" {
		os.MkdirAll("data", 0o755)
		journal, err = execution.NewJournal(cfg.SQLitePath)
		if err != nil {
			slog.Warn("journal init failed, continuing without it", slog.Any("error", err))
			journal = nil
		} else {
			defer journal.Close()
		}
	}

	var exec execution.Executor
	var syncer engine.PositionSyncer
	var paper *execution.PaperExecutor
	if cfg.DryRun {
		paper = execution.NewPaperExecutor(0)
		exec, syncer = paper, paper
		slog.Info("dry-run mode: paper executor active")
	} else {
		venue := execution.NewVenueExecutor(client, sess, "USD", journal)
		exec, syncer = venue, venue
	}

	// ---- Event sink ----
	var snk sink.Sink = sink.LogSink{}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, events go to log only", slog.Any("error", err))
		rdb.Close()
		rdb = nil
	} else {
		rs := sink.NewRedisSink(rdb)
		rs.OnDrop = func() { prom.SinkDrops.Inc() }
		snk = sink.Multi{sink.LogSink{}, rs}
		health.StartLivenessChecker(ctx, rdb, 10*time.Second)
	}

	// ---- Notifier ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	// ---- Engine ----
	eng := engine.New(engine.Config{
		Epic:           cfg.Epic,
		Strategy:       cfg.Strategy,
		InitialBalance: balance,
		Executor:       exec,
		Syncer:         syncer,
		Sink:           snk,
		Notifier:       notifiers,
		Hooks: engine.Hooks{
			OnReading:       func(v float64) { prom.ReadingsTotal.Inc(); prom.RSIValue.Set(v) },
			OnIntent:        func() { prom.IntentsTotal.Inc() },
			OnOrderOpened:   func() { prom.OrdersSubmitted.Inc() },
			OnRateLimited:   func() { prom.RateLimitedIntents.Inc() },
			OnOrderFailed:   func() { prom.OrdersRejected.Inc() },
			OnUnknown:       func() { prom.ConfirmUnknown.Set(1) },
			OnDrawdownHalt:  func() { prom.DrawdownHalted.Set(1) },
			OnDroppedBar:    func() { prom.DroppedBars.Inc() },
			OnCycleDuration: func(d time.Duration) { prom.DecisionCycleDur.Observe(d.Seconds()) },
		},
	})
	if history != nil {
		// Stale-history guard: seeding old closes would let the bot
		// trade on the first live bar of a market that has been closed
		// for days.
		closes := history.MidClosesSince(time.Now().UTC().Add(-cfg.HistoryMaxAge))
		eng.SeedHistory(closes)
		slog.Info("indicator seeded",
			slog.Int("closes", len(closes)),
			slog.Int("fetched", len(history.Prices)))
	}
	go eng.Run(ctx)

	// ---- Market data ----
	streamURL := cfg.StreamURL
	if streamURL == "" {
		if cfg.CapitalDemo {
			streamURL = demoStreamURL
		} else {
			streamURL = liveStreamURL
		}
	}
	ingest := ws.New(ws.IngestConfig{
		URL:           streamURL,
		CST:           sess.CST,
		SecurityToken: sess.SecurityToken,
		Epic:          cfg.Epic,
		Resolution:    cfg.Resolution,
		SubscribeOHLC: cfg.OHLCStream,
	})
	ingest.OnReconnect = func() { prom.WSReconnects.Inc() }
	ingest.OnFeedError = func() { prom.FeedErrors.Inc() }
	ingest.OnConnected = health.SetStreamConnected

	rawQuoteCh := make(chan model.Quote, 4096)
	barCh := make(chan model.PriceBar, 256)
	go ingest.Run(ctx, rawQuoteCh, barCh)

	// Quotes fan out to the engine and, in dry-run, the paper mark.
	fanout := bus.New(4096)
	engineQuotes := fanout.Subscribe()
	var paperQuotes <-chan model.Quote
	if paper != nil {
		paperQuotes = fanout.Subscribe()
	}
	var aggQuotes <-chan model.Quote
	if !cfg.OHLCStream {
		aggQuotes = fanout.Subscribe()
	}
	go fanout.Run(ctx, rawQuoteCh)

	go func() {
		for q := range engineQuotes {
			prom.QuotesTotal.Inc()
			health.SetLastQuoteTime(q.TS)
			eng.OfferQuote(q)
		}
	}()
	if paperQuotes != nil {
		go func() {
			for q := range paperQuotes {
				paper.Mark(q.Mid())
			}
		}()
	}
	if aggQuotes != nil {
		aggregator := agg.New(cfg.Epic, cfg.Resolution, cfg.ResolutionDuration())
		go aggregator.Run(ctx, aggQuotes, barCh)
	}

	go func() {
		for bar := range barCh {
			prom.BarsTotal.Inc()
			eng.OfferBar(bar)
		}
	}()

	// ---- Control API ----
	ctrl := api.NewServer(eng, journal)
	ctrlSrv := &http.Server{Addr: cfg.ControlAddr, Handler: ctrl.Router()}
	go func() {
		slog.Info("control API listening", slog.String("addr", cfg.ControlAddr))
		if err := ctrlSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control API stopped", slog.Any("error", err))
		}
	}()

	if err := eng.Start(); err != nil {
		slog.Error("engine start failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("trading active",
		slog.String("epic", cfg.Epic),
		slog.String("resolution", cfg.Resolution))

	<-sigCh
	slog.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	ctrlSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	if rdb != nil {
		rdb.Close()
	}
	slog.Info("stopped")
}
