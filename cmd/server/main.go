package main

import (
	"bufio"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/config"
	"github.com/stonehall/stonehall/pkg/server"

	_ "github.com/stonehall/stonehall/pkg/world/anvil"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to the configuration file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	srv := server.New(cfg, log)
	srv.Banner()
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	// stdin accepts commands; the literal line "stop" shuts down
	stopCh := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if sc.Text() == "stop" {
				close(stopCh)
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-stopCh:
		log.Info().Msg("shutting down")
	case <-srv.StopChan():
	}

	srv.Stop()
}
