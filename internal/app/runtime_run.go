package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

const drainTimeout = 30 * time.Second

var errInputClosed = errors.New("inbound stream closed")

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("wa-assistant runtime starting",
		"environment", r.cfg.Environment,
		"store_backend", r.cfg.StoreBackend,
		"workers", r.cfg.Workers,
		"digest_enabled", r.digest != nil,
		"watch_scripts", r.watcher != nil,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runLogged(groupCtx, r, "orchestrator", r.engine.Start)
	})
	group.Go(func() error {
		return runLogged(groupCtx, r, "delayer", r.delayer.Start)
	})
	if r.digest != nil {
		group.Go(func() error {
			return runLogged(groupCtx, r, "digest", r.digest.Start)
		})
	}
	if r.watcher != nil {
		group.Go(func() error {
			return runLogged(groupCtx, r, "watcher", r.watcher.Start)
		})
	}
	if r.input != nil {
		group.Go(func() error {
			err := r.readInbound(groupCtx, r.input)
			if err != nil {
				return err
			}
			if !r.exitOnEOF {
				r.logger.Info("inbound stream closed; waiting for shutdown signal")
				return nil
			}
			drainCtx, cancel := context.WithTimeout(groupCtx, drainTimeout)
			defer cancel()
			if err := r.engine.Drain(drainCtx); err != nil {
				r.logger.Warn("inbound drain incomplete", "error", err)
			}
			return errInputClosed
		})
	}

	err := group.Wait()
	if errors.Is(err, errInputClosed) {
		return nil
	}
	return err
}

func runLogged(ctx context.Context, r *Runtime, component string, run func(context.Context) error) error {
	r.logger.Debug("component starting", "component", component)
	err := run(ctx)
	if err != nil && ctx.Err() == nil {
		r.logger.Error("component failed", "component", component, "error", err)
		return err
	}
	r.logger.Debug("component stopped", "component", component)
	return err
}
