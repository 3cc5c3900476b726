package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/encodeous/tint"
	"github.com/renmiamu/dvnet/state"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

// Console is run next to the node and stops it when it returns
type Console func(ctx context.Context, n *Node) error

// ReadConfig loads the config file at path and resolves the local
// configuration of id, with defaults applied. Both halves are validated.
func ReadConfig(path string, id state.NodeId) (*state.NetworkCfg, *state.LocalCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := state.ParseConfig(file)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err = state.NetworkConfigValidator(&cfg.NetworkCfg); err != nil {
		return nil, nil, err
	}
	local := cfg.Node
	local.Id = id
	local.ApplyDefaults()
	if err = state.LocalConfigValidator(&local, &cfg.NetworkCfg); err != nil {
		return nil, nil, err
	}
	return &cfg.NetworkCfg, &local, nil
}

// NewLogger builds the console logger of a node, prefixed with its id. When
// logPath is set, records are also appended to that file.
func NewLogger(id state.NodeId, logPath string, level slog.Level) (*slog.Logger, io.Closer, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			CustomPrefix: string(id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}),
	}
	var closer io.Closer = io.NopCloser(nil)
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a node until it receives SIGINT/SIGTERM or console returns.
// debugAddr, if set, serves the metrics and expvar endpoints.
func Start(ncfg state.NetworkCfg, lcfg state.LocalCfg, level slog.Level, debugAddr string, console Console) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	logger, closer, err := NewLogger(lcfg.Id, lcfg.LogPath, level)
	if err != nil {
		return err
	}
	defer closer.Close()

	env := &state.Env{
		NetworkCfg: ncfg,
		LocalCfg:   lcfg,
		Context:    ctx,
		Cancel:     cancel,
		Log:        logger,
	}

	link, err := ListenUdp(env)
	if err != nil {
		return err
	}
	node := NewNode(env, link)

	if debugAddr != "" {
		srv := &http.Server{Addr: debugAddr}
		context.AfterFunc(ctx, func() {
			srv.Close()
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("debug server stopped", "err", err)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	if console != nil {
		// the console may block on stdin, so it is not part of the group
		go func() {
			if err := console(ctx, node); err != nil {
				logger.Error("console failed", "err", err)
			}
			cancel(errors.New("console closed"))
		}()
	}

	logger.Info("dvnet has been initialized. To gracefully exit, type exit or send SIGINT.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return link.Serve(gctx, node.HandlePacket)
	})
	g.Go(func() error {
		return node.Run(gctx)
	})
	err = g.Wait()
	logger.Info("stopped", "reason", context.Cause(ctx))
	return err
}
