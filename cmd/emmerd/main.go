// Command emmerd is an example TFTP server built on the emmer package. It
// registers a handful of illustrative routes (port over the original
// service's moderate.py example) and serves Prometheus metrics and the
// conversation debug endpoint over HTTP alongside the UDP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dropbox/emmer"
)

func main() {
	host := flag.String("host", "127.0.0.1", "UDP host to listen on")
	port := flag.Int("port", 3942, "UDP port to listen on")
	httpAddr := flag.String("http", "127.0.0.1:9942", "address to serve /metrics and /debug/conversations on")
	resendTimeout := flag.Duration("resend-timeout", 5*time.Second, "time to wait before resending an unacked packet")
	retries := flag.Uint("retries", 6, "resend attempts before giving up on a conversation")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := emmer.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.ResendTimeout = *resendTimeout
	cfg.RetriesBeforeGiveup = uint32(*retries)

	srv := emmer.New(cfg)
	registerExampleRoutes(srv)

	registry := prometheus.NewRegistry()
	registry.MustRegister(srv.Collector())
	registry.MustRegister(srv.PushMetrics().Collectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/conversations", srv.DebugHandler())
	mux.Handle("/debug/drop", srv.DropHandler())

	go func() {
		logrus.WithField("addr", *httpAddr).Info("serving metrics and debug endpoint")
		if err := http.ListenAndServe(*httpAddr, mux); err != nil {
			logrus.WithError(err).Fatal("http server exited")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Fatal("server exited")
	}
}

// registerExampleRoutes mirrors the original service's moderate.py sample
// app: a "directory" of synthetic files, a route whose reply depends on
// whether the client port is above 30000, and a healthcheck, plus a write
// route that just logs what arrived.
func registerExampleRoutes(srv *emmer.Server) {
	srv.OnRead(`data/.*`, func(host string, port int, filename string) ([]byte, error) {
		return []byte(fmt.Sprintf("output from the data directory: filename: %s", filename)), nil
	})

	srv.OnRead(`example_directory/.*`, func(host string, port int, filename string) ([]byte, error) {
		if port > 30000 {
			return []byte(fmt.Sprintf("output from the example directory: filename: %s. You are using a high port number.", filename)), nil
		}
		return []byte(fmt.Sprintf("output from the example directory: filename: %s. You are using a low port number.", filename)), nil
	})

	srv.OnRead(`healthcheck`, func(host string, port int, filename string) ([]byte, error) {
		return []byte("OK"), nil
	})

	srv.OnWrite(`.*`, func(host string, port int, filename string, data []byte) error {
		logrus.WithFields(logrus.Fields{
			"host": host, "port": port, "filename": filename, "bytes": len(data),
		}).Info("received uploaded file")
		return nil
	})
}
