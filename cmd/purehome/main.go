package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/purehome/internal/authstate"
	"github.com/joshp123/purehome/internal/config"
	"github.com/joshp123/purehome/internal/core"
	"github.com/joshp123/purehome/internal/homebus"
	"github.com/joshp123/purehome/internal/logging"
	"github.com/joshp123/purehome/internal/rate"
	"github.com/joshp123/purehome/internal/router"
	"github.com/joshp123/purehome/internal/server"
	"github.com/joshp123/purehome/plugins/molekule"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to purehome.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Get(logging.InfoLevel).Fatalw("load config", "path", *configPath, "error", err)
	}

	log := logging.Get(cfg.LogLevel)

	var bus *homebus.Client
	if cfg.MQTT != nil {
		bus, err = homebus.NewClient(homebus.Config{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			PasswordFile:    cfg.MQTT.PasswordFile,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			QoS:             byte(cfg.MQTT.QoS),
		})
		if err != nil {
			log.Fatalw("mqtt setup", "error", err)
		}
		if err := bus.Connect(); err != nil {
			log.Fatalw("mqtt connect", "broker", cfg.MQTT.Broker, "error", err)
		}
		defer bus.Close()
	}

	var compiled []core.Plugin
	if plugin, ok := molekule.NewPlugin(cfg.Molekule, cfg.State, bus); ok {
		compiled = append(compiled, plugin)
	}

	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		log.Fatalw("plugin config", "error", err)
	}
	plugins := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(plugins); err != nil {
		log.Fatalw("plugin validation", "error", err)
	}

	registry := core.NewRegistry(plugins)

	metricsRegistry := core.MetricsRegistry(plugins)
	for _, collector := range authstate.MetricsCollectors() {
		metricsRegistry.MustRegister(collector)
	}
	for _, collector := range rate.MetricsCollectors() {
		metricsRegistry.MustRegister(collector)
	}
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "purehome_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	if err := core.WriteDashboards(cfg.DashboardDir, plugins); err != nil {
		log.Warnw("write dashboards", "dir", cfg.DashboardDir, "error", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler)
	mux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	mux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(plugins)))
	router.RegisterPlugins(mux, registry, plugins)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, plugin := range plugins {
		if runner, ok := plugin.(core.Runner); ok {
			go runner.Start(ctx)
			defer runner.Close()
		}
	}

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, mux)
	go func() {
		log.Infow("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http serve", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")
	_ = httpServer.Server.Shutdown(context.Background())
}
