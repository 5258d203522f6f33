package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/clock"
	"github.com/edgefleet/inspection-engine/internal/config"
	"github.com/edgefleet/inspection-engine/internal/diagnostics"
	"github.com/edgefleet/inspection-engine/internal/matrix"
	"github.com/edgefleet/inspection-engine/internal/queue"
	"github.com/edgefleet/inspection-engine/internal/resource"
	"github.com/edgefleet/inspection-engine/internal/sentryreport"
	"github.com/edgefleet/inspection-engine/internal/spool"
	"github.com/edgefleet/inspection-engine/internal/store"
	"github.com/edgefleet/inspection-engine/internal/transport/mqttchannel"
	"github.com/edgefleet/inspection-engine/internal/transport/relay"
	"github.com/edgefleet/inspection-engine/internal/trigger"
	"github.com/edgefleet/inspection-engine/internal/types"
	"github.com/edgefleet/inspection-engine/internal/worker"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		// Args didn't parse; nothing to log with yet.
		os.Exit(2)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.LogMode == "development" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = lvl
	}
	logger, _ := zapCfg.Build()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()
	sugar := logger.Sugar()

	sentryreport.Init(cfg.SentryDSN, cfg.LogMode, "edge-agent")

	ingress := queue.NewBounded[types.CollectedDataFrame](cfg.IngressQueueCapacity)
	st := store.New()
	mgr := matrix.New()

	sp, err := spool.Open(cfg.SpoolDir, sugar)
	if err != nil {
		sugar.Fatalw("failed to open payload spool", "error", err)
	}
	defer sp.Close()
	go sp.ReportLength(10 * time.Second)

	channel, err := mqttchannel.New(mqttchannel.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		CAFile:    cfg.MQTTCAFile,
		CertFile:  cfg.MQTTCertFile,
		KeyFile:   cfg.MQTTKeyFile,
	}, sugar)
	if err != nil {
		sugar.Fatalw("failed to connect mqtt channel", "error", err)
	}
	channel.SetTopic(cfg.MQTTTopic)

	// rel is the second LockedQueue<T> instance (spec §4.1, §5): the
	// trigger engine's Tick (on the inspection worker's own goroutine)
	// only pushes onto rel's bounded queue, never touches the network
	// itself. rel.Run owns every blocking MQTT round trip on its own
	// dedicated transport goroutine.
	rel := relay.New(cfg.PublishQueueCapacity, channel, sp, sugar)
	go rel.Run()

	trig := trigger.New(mgr, st, rel)

	rc := clock.Real{}
	w := worker.New(rc, ingress, st, mgr, trig, sugar, cfg.IdleTime)
	w.Start()

	res, err := resource.New(sugar)
	if err != nil {
		sugar.Warnw("failed to start resource reporter", "error", err)
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go res.Run(ctx, 15*time.Second)
	}

	diagServer := diagnostics.New(sugar, w, channel, mgr, trig, rel)
	go func() {
		if err := diagServer.Run(cfg.DiagnosticsListenAddr); err != nil {
			sugar.Errorw("diagnostics server stopped", "error", err)
		}
	}()

	periodicallyDrainSpool(channel, sp)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigs
	sugar.Infow("received shutdown signal", "signal", sig)

	w.Stop()
	rel.Stop()
	channel.Disconnect(1000)
	sugar.Info("shutdown complete")
}

// periodicallyDrainSpool re-attempts previously spooled payloads once the
// MQTT channel is alive again, independent of the relay's own steady-state
// publish path.
func periodicallyDrainSpool(channel *mqttchannel.Channel, sp *spool.Spool) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if channel.IsAlive() {
				sp.Drain(channel.Publish)
			}
		}
	}()
}
