// Command streamd serves the development activity stream: websocket and
// ND-JSON endpoints backed by a scripted scenario driver, plus an /emit
// endpoint for injecting handcrafted events.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"aether_monitor/internal/source"
)

func main() {
	addrFlag := flag.String("addr", "", "http listen address override")
	seed := flag.Int64("seed", time.Now().UnixNano(), "scenario random seed")
	quiet := flag.Bool("quiet", false, "disable the scripted scenario driver")
	flag.Parse()

	addr := firstNonEmpty(*addrFlag, ":8123")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := source.NewHub(256)
	if !*quiet {
		source.NewScenario(hub, log.Default(), *seed).Start(ctx)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           source.NewServer(hub, log.Default()).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("streamd started addr=%s scenario=%t", addr, !*quiet)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server failed: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
