// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/DarrenJCoxon/devpulse-sub002/engine"
	"github.com/DarrenJCoxon/devpulse-sub002/lib/config"
	"github.com/DarrenJCoxon/devpulse-sub002/schema"
	"github.com/DarrenJCoxon/devpulse-sub002/store"
)

// maxEventLine bounds one NDJSON event line. Chat transcripts can be
// large.
const maxEventLine = 4 << 20

// runServe wires the full daemon: SQLite store, engine, reconciler,
// and the unix-socket NDJSON ingest listener. Blocks until SIGINT or
// SIGTERM.
func runServe(cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("serve: creating database directory: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:   cfg.DatabasePath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer st.Close()

	eng := engine.New(engine.Config{
		Logger:         logger,
		Store:          st,
		IdleThreshold:  cfg.IdleThreshold(),
		StopThreshold:  cfg.StopThreshold(),
		ConflictWindow: cfg.ConflictWindow(),
	})
	defer eng.Close()

	var wg sync.WaitGroup

	reconciler := engine.NewReconciler(engine.ReconcilerConfig{
		Engine:   eng,
		Logger:   logger,
		Interval: cfg.ReconcileInterval(),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	listener, err := listenIngest(cfg.IngestSocket)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	// Closing the listener unblocks the accept loop on shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("devpulse serving",
		"socket", cfg.IngestSocket,
		"database", cfg.DatabasePath,
		"idle_threshold", cfg.IdleThreshold(),
		"stop_threshold", cfg.StopThreshold())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("accept", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleIngestConn(ctx, eng, conn, logger)
		}()
	}

	logger.Info("shutting down")
	wg.Wait()
	os.Remove(cfg.IngestSocket)
	return nil
}

// listenIngest binds the unix socket, replacing a stale socket file
// from a previous run.
func listenIngest(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return listener, nil
}

// ingestResponse is the per-line reply on the ingest socket.
type ingestResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleIngestConn reads newline-delimited JSON events from one
// connection and applies them in arrival order, which preserves
// per-session ordering for senders that keep a session on one
// connection. Each line gets a reply; a bad line is reported without
// dropping the connection.
func handleIngestConn(ctx context.Context, eng *engine.Engine, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	replies := json.NewEncoder(conn)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event schema.RawEvent
		if err := json.Unmarshal(line, &event); err != nil {
			writeReply(replies, logger, ingestResponse{OK: false, Error: "malformed JSON: " + err.Error()})
			continue
		}

		if _, err := eng.HandleEvent(ctx, event); err != nil {
			// Validation and duplicate-termination errors go back to
			// the sender; the connection stays up.
			writeReply(replies, logger, ingestResponse{OK: false, Error: err.Error()})
			continue
		}
		writeReply(replies, logger, ingestResponse{OK: true})
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("ingest connection read error", "error", err)
	}
}

func writeReply(encoder *json.Encoder, logger *slog.Logger, reply ingestResponse) {
	if err := encoder.Encode(reply); err != nil {
		logger.Warn("ingest reply write error", "error", err)
	}
}
