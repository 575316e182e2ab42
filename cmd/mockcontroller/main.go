package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/mockctl"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:8443", "listen address")
	aps := flag.Int("aps", 12, "number of simulated access points")
	stations := flag.Int("stations", 80, "number of simulated stations")
	seed := flag.Int64("seed", 1, "simulation seed")
	token := flag.String("token", "", "require this bearer token (optional)")
	step := flag.Duration("step", 5*time.Second, "simulation step interval; 0 disables")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fleet := mockctl.NewFleet(*aps, *stations, *seed, time.Now())
	server := mockctl.NewServer(fleet, mockctl.Options{Token: *token, Logger: &logger})

	srv := &http.Server{Addr: *addr, Handler: server.Router(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info().Str("addr", *addr).Int("aps", *aps).Int("stations", *stations).Msg("mock controller listening")

	var tick <-chan time.Time
	if *step > 0 {
		ticker := time.NewTicker(*step)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
			return 0
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "mockcontroller: %v\n", err)
				return 1
			}
			return 0
		case <-tick:
			server.Step()
		}
	}
}
