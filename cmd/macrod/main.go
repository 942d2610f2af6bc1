// Command macrod runs the input capture and playback daemon.
//
// Invoked as "macrod capture-worker" it instead runs a single capture
// session as a worker child, streaming events to stdout. The daemon spawns
// it that way on platforms where input hooks cannot share its process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	errors2 "errors"

	"github.com/nikosalonen/macrod/catalog"
	"github.com/nikosalonen/macrod/daemon"
	"github.com/nikosalonen/macrod/hostio"
	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == macro.WorkerMode {
		runWorker()
		return
	}
	runDaemon()
}

func runDaemon() {
	conf := daemon.Load()
	logger := log.NewLogger(os.Stderr, conf.LogLevel)

	cat, err := catalog.Open(logger, conf.CatalogPath)
	if err != nil {
		logger.Errorf("opening catalog: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Warnf("closing catalog: %v", err)
		}
	}()

	opts := macro.Options{
		StopKey:   conf.StopKey,
		QueueSize: conf.QueueSize,
	}
	ctrl := macro.NewController(
		logger,
		hostio.NewSourceFactory(logger, conf.Mode, opts, conf.WorkerCmd...),
		hostio.NewInjector(),
	)
	srv := daemon.NewServer(logger, conf, ctrl, cat)

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errC:
		if err != nil && !errors2.Is(err, http.ErrServerClosed) {
			logger.Errorf("server: %v", err)
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Debugf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("shutdown: %v", err)
			os.Exit(1)
		}
	}
}

// runWorker runs the child half of an isolated capture session. Every log
// line goes to stderr, where the parent picks it up; stdout carries only
// the event stream.
func runWorker() {
	logger := log.NewLogger(os.Stderr, log.Debug)

	queueSize := 0
	if raw := os.Getenv(macro.EnvQueueSize); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			queueSize = n
		}
	}
	conf := macro.WorkerConfig{
		Options: macro.Options{
			StopKey:   os.Getenv(macro.EnvStopKey),
			QueueSize: queueSize,
		},
	}

	hook := hostio.NewHook(logger)
	if err := macro.RunCaptureWorker(logger, os.Stdin, os.Stdout, conf, hook); err != nil {
		logger.Errorf("capture worker: %v", err)
		os.Exit(1)
	}
}
