package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memoryd/internal/config"
	"memoryd/internal/logging"
	"memoryd/internal/tools"
)

// serveCmd runs the daemon loop
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory daemon",
	Long: `Starts memoryd and serves tool calls over stdin/stdout.

Each input line is one JSON request: {"tool": "record_event", "args": {...}}.
Each output line is the matching JSON response. The config file is watched
and privacy/logging sections hot-reload; everything else needs a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st.worker.Start(ctx)

	var watcher *config.Watcher
	if cfgPath != "" {
		watcher, err = config.NewWatcher(cfgPath, cfg, func(fresh *config.Config) {
			st.policy.SetConfig(fresh.Privacy)
			if err := logging.ReloadConfig(); err != nil {
				logger.Warn("logging config reload failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	logger.Info("memoryd ready",
		zap.String("db", cfg.DatabasePath),
		zap.Int("tools", st.registry.Count()),
		zap.Bool("consolidation", cfg.Consolidation.Enabled))

	done := make(chan error, 1)
	go func() { done <- dispatchLoop(ctx, st.registry, os.Stdin, os.Stdout) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down on signal")
		return nil
	case err := <-done:
		return err
	}
}

// dispatchLoop reads newline-delimited JSON requests and writes one response
// per request. Malformed lines get an invalid_input response rather than
// killing the daemon.
func dispatchLoop(ctx context.Context, reg *tools.Registry, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req tools.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := tools.Response{
				OK:    false,
				Error: &tools.ErrorObject{Kind: "invalid_input", Message: "malformed request: " + err.Error()},
			}
			if err := enc.Encode(resp); err != nil {
				return err
			}
			continue
		}

		resp := reg.Dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
