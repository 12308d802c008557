package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TanssiDashboard/internal/aggregator"
	"TanssiDashboard/internal/chain"
	"TanssiDashboard/internal/config"
	"TanssiDashboard/internal/display"
	internalhttp "TanssiDashboard/internal/http"
	"TanssiDashboard/internal/hub"
	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/prober"
	"TanssiDashboard/internal/resolver"
	"TanssiDashboard/internal/services"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if !log.SetLevel(cfg.Log.Level) {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, keeping info")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector := chain.WSConnector{}
	res := resolver.New(cfg.Networks, connector, cfg.ResolveTimeout(), cfg.Dashboard.FailoverThreshold)
	prb := prober.New(connector, cfg.ProbeTimeout())

	ws := hub.New(cfg.Server.AllowedOrigins, nil)
	go ws.Run(ctx)

	agg := aggregator.New(res, prb, ws, aggregator.Options{
		Interval:     cfg.Interval(),
		RefreshEvery: cfg.Dashboard.RefreshEvery,
		MaxParallel:  cfg.Dashboard.MaxParallelProbes,
	})

	titles := make(map[string]string, len(cfg.Networks))
	networks := make([]services.Network, 0, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		titles[name] = cfg.Networks[name].Title
		networks = append(networks, services.Network{Name: name, Title: cfg.Networks[name].Title})
	}
	renderer := display.Renderer{BlockTimeOffset: cfg.BlockTimeOffset(), Titles: titles}
	dashboard := services.NewDashboard(ctx, agg, renderer, networks)
	defer dashboard.Close()

	ws.Acquire = dashboard.Acquire
	ws.Release = dashboard.Release
	ws.Encode = dashboard.Encode

	if _, err := dashboard.Ensure(cfg.Dashboard.DefaultNetwork); err != nil {
		log.Fatal().Err(err).Str("network", cfg.Dashboard.DefaultNetwork).Msg("start default network failed")
	}

	h := internalhttp.NewHandler(dashboard)
	srv := internalhttp.NewServer(h, ws.HandleConnect, cfg.Server.AllowedOrigins)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("network", cfg.Dashboard.DefaultNetwork).
			Dur("interval", cfg.Interval()).Msg("dashboard listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
