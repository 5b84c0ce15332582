// Package main provides the entrypoint for the envwatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/api"
	"github.com/breatheroute/envwatch/internal/api/middleware"
	"github.com/breatheroute/envwatch/internal/config"
	"github.com/breatheroute/envwatch/internal/geolocation"
	"github.com/breatheroute/envwatch/internal/geolocation/ipapi"
	"github.com/breatheroute/envwatch/internal/heatmap"
	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/openmeteo"
	"github.com/breatheroute/envwatch/internal/pegelonline"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
	"github.com/breatheroute/envwatch/internal/refresh"
	"github.com/breatheroute/envwatch/internal/telemetry"
	"github.com/breatheroute/envwatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "envwatch-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting envwatch API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	clock := clockwork.NewRealClock()
	registry := resilience.NewRegistry(clock)
	upstream := func(name string) *resilience.Client {
		c := resilience.DefaultClientConfig(name)
		c.Timeout = cfg.SourceTimeout
		c.RequestsPerSecond = cfg.UpstreamRPS
		c.Registry = registry
		c.Meter = tp.Meter
		c.Logger = log
		return resilience.NewClient(c)
	}

	airWeather := openmeteo.NewClient(openmeteo.ClientConfig{
		AirURL:     cfg.OpenMeteoAirURL,
		WeatherURL: cfg.OpenMeteoWeatherURL,
		HTTPClient: upstream("open-meteo"),
		Logger:     log,
	})
	hydro := pegelonline.NewClient(pegelonline.ClientConfig{
		BaseURL:    cfg.PegelOnlineURL,
		StationID:  cfg.PegelOnlineStationID,
		HTTPClient: upstream("pegelonline"),
		Logger:     log,
	})

	var locator geolocation.Locator
	if cfg.GeolocationEnabled {
		locator = ipapi.NewClient(ipapi.ClientConfig{
			URL:        cfg.GeolocationURL,
			HTTPClient: upstream("ip-api"),
			Logger:     log,
		})
	}

	orch := refresh.New(refresh.Config{
		AirWeather:           airWeather,
		Hydro:                hydro,
		Locator:              locator,
		Clock:                clock,
		Metrics:              metrics,
		Tracer:               tp.Tracer,
		Logger:               log,
		DefaultLocation:      cfg.DefaultPlace,
		AutoRefresh:          cfg.AutoRefreshEnabled,
		AutoRefreshInterval:  cfg.AutoRefreshInterval,
		HydroRefreshInterval: cfg.HydroRefreshInterval,
		GeolocationTimeout:   cfg.GeolocationTimeout,
	})
	orch.Start(ctx)
	orch.LocateAsync(ctx)

	if cfg.PubSubEnabled() {
		startJobs(ctx, cfg, orch, metrics, log)
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Orchestrator: orch,
		Registry:     registry,
		Heatmap:      heatmap.NewGenerator(nil),
		Metrics:      middleware.NewHTTPMetrics(reg),
		Gatherer:     reg,
		RequireTLS:   cfg.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	orch.Stop()

	log.Info().Msg("server stopped")
}

// startJobs subscribes to refresh commands. Failures are logged and the API
// keeps serving without the subscription.
func startJobs(ctx context.Context, cfg config.Config, orch *refresh.Orchestrator, metrics *observability.Metrics, log zerolog.Logger) {
	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		Dispatcher: worker.NewDispatcher(worker.DispatcherConfig{
			Orchestrator: orch,
			Metrics:      metrics,
			Logger:       log,
		}),
		Logger: log,
	})
	if err != nil {
		log.Error().Err(err).Msg("pubsub unavailable, job subscription disabled")
		return
	}

	go func() {
		defer func() {
			if err := handler.Close(); err != nil {
				log.Warn().Err(err).Msg("closing pubsub client")
			}
		}()
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
		}
	}()
}
