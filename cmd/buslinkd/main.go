package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/perchlabs/buslink/internal/admin"
	"github.com/perchlabs/buslink/internal/config"
	"github.com/perchlabs/buslink/internal/dispatch"
	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/pkg/buslink"
)

func main() {
	observability.InitLogger("buslinkd")

	configPath := flag.String("config", "buslinkd.toml", "path to daemon config")
	writeTemplate := flag.Bool("init", false, "write a template config and exit")
	flag.Parse()

	if *writeTemplate {
		if err := config.WriteTemplate(*configPath, false); err != nil {
			log.Fatal().Err(err).Msg("failed to write config template")
		}
		log.Info().Str("path", *configPath).Msg("wrote config template")
		return
	}

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load daemon config")
	}
	log.Info().Str("path", *configPath).Msg("loaded daemon config")

	clientCfg := buslink.DefaultConfig(cfg.Endpoint)
	clientCfg.Link = cfg.LinkSettings()
	clientCfg.Dispatch = dispatch.Config{ContinuationDepth: cfg.Link.ContinuationDepth}

	client, err := buslink.New(clientCfg, buslink.WithConnectionHooks(
		func() { log.Info().Str("endpoint", cfg.Endpoint).Msg("link up") },
		func() { log.Warn().Str("endpoint", cfg.Endpoint).Msg("link down") },
	))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build client")
	}
	if err := client.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start client")
	}
	defer client.Stop()

	for _, topicName := range cfg.Bridge.Topics {
		name := topicName
		err := client.Subscribe(name, func(payload []byte) {
			log.Debug().Str("topic", name).Int("bytes", len(payload)).Msg("bridge message")
		})
		if err != nil {
			log.Fatal().Str("topic", name).Err(err).Msg("failed to subscribe bridge topic")
		}
	}
	for _, serviceName := range cfg.Bridge.Services {
		// diagnostic echo responders, useful for link smoke tests
		err := client.RegisterService(serviceName, func(request []byte) ([]byte, error) {
			return request, nil
		})
		if err != nil {
			log.Fatal().Str("service", serviceName).Err(err).Msg("failed to register bridge service")
		}
	}

	server := admin.New(cfg.Name, cfg.AdminAddr, cfg.CorsOrigins, client)
	go func() {
		log.Info().Str("addr", cfg.AdminAddr).Msg("admin server started")
		if err := server.Serve(); err != nil {
			log.Fatal().Err(err).Msg("admin server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")
}
