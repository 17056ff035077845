// Command tada-api serves a local stand-in for the todo API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/server"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
)

func main() {
	if err := mainInner(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addr := flag.String("addr", "127.0.0.1:8080", "the address to listen on")
	data := flag.String("data", "", "JSON file or directory to persist todos to (memory only when empty)")
	token := flag.String("token", os.Getenv("TADA_API_TOKEN"), "bearer token required on every request")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, logging.Options{Level: *level, Prefix: "tada-api", ReportTimestamp: true})
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(logger)}
	if *data != "" {
		st := jsonstore.New(*data)
		logger.Info("persisting todos", "path", st.Path())
		opts = append(opts, server.WithStore(st))
	}
	if *token != "" {
		opts = append(opts, server.WithToken(*token))
	}
	s, err := server.New(opts...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: *addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	logger.Info("signal caught", "sig", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	wg.Wait()
	return nil
}
