package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pushflow/config"
	"pushflow/internal/channel"
	"pushflow/internal/metrics"
	"pushflow/internal/signer"
	"pushflow/internal/status"
	"pushflow/logger"
	"pushflow/models"
	"pushflow/push"
	"pushflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Pushflow.Name,
		"version": cfg.Pushflow.Version,
		"env":     config.CurrentEnvironment().String(),
	}).Info("starting pushflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init()
		metrics.Serve(ctx, cfg.Metrics.ListenAddr)
		metrics.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)
	}

	events := channel.NewEvents(cfg.Channels.EventBuffer)
	metrics.StartChannelSizeMetrics(ctx, events, 5*time.Second)

	sink, err := writer.New(cfg, events.C)
	if err != nil {
		log.WithError(err).Error("failed to create writer")
		os.Exit(1)
	}
	if err := sink.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start writer")
		os.Exit(1)
	}

	privateKey := cfg.Credentials.PrivateKey
	if privateKey == "" {
		privateKey, err = signer.LoadPrivateKey(cfg.Credentials.PrivateKeyPath)
		if err != nil {
			log.WithError(err).Error("failed to load private key")
			os.Exit(1)
		}
	}

	client := push.NewClient(cfg.Push, nil)
	client.SetCallbacks(callbacks(ctx, client, cfg.Subscriptions, events))

	statusDone := make(chan struct{})
	if srv := status.NewServer(cfg.Status, log, client, events); srv != nil {
		go func() {
			defer close(statusDone)
			if err := srv.Run(ctx); err != nil {
				log.WithError(err).WithFields(logger.Fields{"addr": srv.Address()}).Error("status api stopped")
			}
		}()
	} else {
		close(statusDone)
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Push.ConnectionTimeout)
	err = client.Connect(connectCtx, cfg.Credentials.TigerID, privateKey)
	connectCancel()
	if err != nil {
		log.WithError(err).Error("failed to connect to push broker")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	if err := client.Disconnect(); err != nil {
		log.WithError(err).Warn("disconnect failed")
	}
	if writer.Drain(sink, events.Close, 30*time.Second) {
		log.Info("event writer drained")
	} else {
		log.Warn("event writer drain timeout exceeded")
	}
	cancel()

	select {
	case <-statusDone:
		log.Info("graceful shutdown completed")
	case <-time.After(5 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	stats := events.GetStats()
	log.WithFields(logger.Fields{
		"events_sent":    stats.Sent,
		"events_dropped": stats.Dropped,
	}).Info("pushflow stopped")
}

// callbacks forwards every push event into the event channel and issues the
// configured subscriptions each time the session is (re)established.
func callbacks(ctx context.Context, client *push.Client, subs config.SubscriptionsConfig, events *channel.Events) push.Callbacks {
	log := logger.GetLogger().WithComponent("main")

	forward := func(ev models.Event) {
		ev.SessionID = client.ID()
		ev.ReceivedAt = time.Now().UTC()
		events.Send(ctx, ev)
	}

	return push.Callbacks{
		OnConnect: func() {
			// runs on the delivery goroutine; subscriptions only write frames
			subscribe(client, subs)
		},
		OnSubscribe: func(destination string, body map[string]interface{}) {
			log.WithFields(logger.Fields{"destination": destination, "reply": body}).Info("subscribed")
		},
		OnUnsubscribe: func(destination string, body map[string]interface{}) {
			log.WithFields(logger.Fields{"destination": destination, "reply": body}).Info("unsubscribed")
		},
		OnError: func(body string) {
			log.WithFields(logger.Fields{"body": body}).Warn("push error")
			forward(models.Event{Category: models.CategoryError, Subject: body})
		},
		OnQuoteChanged: func(q models.QuoteEvent) {
			forward(models.Event{Category: models.CategoryQuote, Subject: q.Symbol, Fields: q.Fields, HourTrading: q.HourTrading})
		},
		OnAssetChanged: func(a models.AccountEvent) {
			forward(models.Event{Category: models.CategoryAsset, Subject: a.Account, Fields: a.Fields})
		},
		OnPositionChanged: func(p models.AccountEvent) {
			forward(models.Event{Category: models.CategoryPosition, Subject: p.Account, Fields: p.Fields})
		},
		OnOrderChanged: func(o models.AccountEvent) {
			forward(models.Event{Category: models.CategoryOrder, Subject: o.Account, Fields: o.Fields})
		},
		OnSubscribedSymbols: func(s models.SubscribedSymbols) {
			forward(models.Event{Category: models.CategorySnapshot, Subject: "quote", Snapshot: &s})
		},
	}
}

func subscribe(client *push.Client, subs config.SubscriptionsConfig) {
	log := logger.GetLogger().WithComponent("main")

	check := func(what string, err error) {
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"subscription": what}).Warn("subscribe failed")
		}
	}

	if subs.Asset {
		_, err := client.SubscribeAsset(subs.Account)
		check("asset", err)
	}
	if subs.Position {
		_, err := client.SubscribePosition(subs.Account)
		check("position", err)
	}
	if subs.Order {
		_, err := client.SubscribeOrder(subs.Account)
		check("order", err)
	}
	if len(subs.Quote.Symbols) > 0 {
		_, err := client.SubscribeQuote(subs.Quote.Symbols, push.KeyType(subs.Quote.KeyType), subs.Quote.FocusKeys)
		check("quote", err)
	}
	if len(subs.Depth) > 0 {
		_, err := client.SubscribeDepthQuote(subs.Depth)
		check("depth", err)
	}
	if len(subs.Option) > 0 {
		_, err := client.SubscribeOption(subs.Option)
		check("option", err)
	}
	if len(subs.Future) > 0 {
		_, err := client.SubscribeFuture(subs.Future)
		check("future", err)
	}
	if subs.QueryOnConnect {
		check("query", client.QuerySubscribedQuote())
	}
}
