package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moyoez/imagerestore/api"
	"github.com/moyoez/imagerestore/api/models"
	"github.com/moyoez/imagerestore/client"
	"github.com/moyoez/imagerestore/device"
	"github.com/moyoez/imagerestore/notify"
	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

func main() {
	cfg := tool.SetFlags()
	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	tool.ApplyFlagOverrides(&appCfg, cfg)
	tool.CurrentConfig = appCfg
	tool.SetFlagOverrides(&cfg)

	if cfg.SkipNotify {
		notify.UseNotify = false
	}

	// initialize logger
	tool.InitLogger()
	tool.SetLogMode(cfg.Log)

	provider := &device.Provider{
		WipeCommand: appCfg.WipeCommand,
		Exclusive:   appCfg.ExclusiveOpen,
	}
	if cfg.DryWipe {
		provider.Runner = device.NoopRunner{}
	}
	engine := &transfer.Engine{
		Sources:          provider,
		Targets:          provider,
		BufferSize:       appCfg.BufferSize,
		ProgressInterval: appCfg.ProgressInterval,
		EstimatorWindow:  appCfg.EstimatorWindow,
		EstimatorSamples: appCfg.EstimatorSamples,
	}
	models.SetSessionTTL(appCfg.SessionTTL)

	switch {
	case cfg.Serve:
		os.Exit(serve(appCfg, engine))
	case cfg.Remote != "":
		os.Exit(remote(cfg, appCfg))
	case cfg.Source != "" && cfg.Target != "":
		os.Exit(restoreOnce(cfg, appCfg, engine))
	default:
		tool.DefaultLogger.Error("Nothing to do: pass -serve, -remote, or -source with -target")
		os.Exit(2)
	}
}

func serve(appCfg types.AppConfig, engine *transfer.Engine) int {
	if appCfg.NotifyWebsocket {
		api.EnableNotifyWS()
	}
	apiServer := api.NewServer(appCfg.Listen, engine, appCfg.StartRateLimit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			tool.DefaultLogger.Errorf("API server startup failed: %v", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	tool.DefaultLogger.Info("[Server] Shutting down, cancelling running sessions")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		tool.DefaultLogger.Errorf("[Server] shutdown: %v", err)
		return 1
	}
	return 0
}

func remote(cfg types.Config, appCfg types.AppConfig) int {
	switch {
	case cfg.Cancel != "":
		if err := client.CancelRestore(cfg.Remote, cfg.Cancel); err != nil {
			tool.DefaultLogger.Errorf("[Client] cancel %s: %v", cfg.Cancel, err)
			return 1
		}
		tool.DefaultLogger.Infof("[Client] cancel requested for %s", cfg.Cancel)
		return 0
	case cfg.Status != "":
		snap, err := client.GetStatus(cfg.Remote, cfg.Status)
		if err != nil {
			tool.DefaultLogger.Errorf("[Client] status %s: %v", cfg.Status, err)
			return 1
		}
		logSnapshot(*snap)
		return 0
	case cfg.Source != "" && cfg.Target != "":
	default:
		list, err := client.ListSessions(cfg.Remote)
		if err != nil {
			tool.DefaultLogger.Errorf("[Client] status: %v", err)
			return 1
		}
		for _, snap := range list {
			logSnapshot(snap)
		}
		return 0
	}

	resp, err := client.StartRestore(cfg.Remote, types.RestoreRequest{Source: cfg.Source, Target: cfg.Target, Force: cfg.Force})
	if err != nil {
		tool.DefaultLogger.Errorf("[Client] start: %v", err)
		return 1
	}
	if resp.Warning != "" {
		tool.DefaultLogger.Warn(resp.Warning)
	}
	tool.DefaultLogger.Infof("[Client] session %s started", resp.SessionId)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	interval := appCfg.ProgressInterval * 5
	snap, err := client.Follow(ctx, cfg.Remote, resp.SessionId, interval, logSnapshot)
	if errors.Is(err, context.Canceled) {
		if cerr := client.CancelRestore(cfg.Remote, resp.SessionId); cerr != nil {
			tool.DefaultLogger.Errorf("[Client] cancel %s: %v", resp.SessionId, cerr)
		}
		return 130
	}
	if err != nil {
		tool.DefaultLogger.Errorf("[Client] follow %s: %v", resp.SessionId, err)
		return 1
	}
	if snap.State != types.SessionCompleted {
		return 1
	}
	return 0
}

func logSnapshot(snap types.SessionSnapshot) {
	line := notify.DescribeSession(snap)
	if snap.Error != "" {
		tool.DefaultLogger.Errorf("[Client] %s %s: %s (%s)", snap.SessionId, snap.State, line, snap.Error)
		return
	}
	tool.DefaultLogger.Infof("[Client] %s %s: %s", snap.SessionId, snap.State, line)
}

func restoreOnce(cfg types.Config, appCfg types.AppConfig, engine *transfer.Engine) int {
	req := transfer.Request{Source: cfg.Source, Target: cfg.Target}
	verdict, err := engine.PreflightLocators(req)
	if err != nil {
		tool.DefaultLogger.Errorf("[Restore] %v", err)
		return 1
	}
	if verdict.Warning != "" {
		if !cfg.Force {
			tool.DefaultLogger.Errorf("[Restore] %s; pass -force to restore anyway", verdict.Warning)
			return 1
		}
		tool.DefaultLogger.Warn(verdict.Warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := transfer.NewSession(req)
	if appCfg.Notify {
		if err := notify.SendRestoreStartNotification(appCfg.NotifySocket, session.Id, req.Source, req.Target); err != nil {
			tool.DefaultLogger.Debugf("[Notify] start notification: %v", err)
		}
	}
	reporter := notify.NewReporter(notify.SinksFor(session.Id, appCfg, nil))
	h := transfer.StartSession(engine, session, transfer.NewCancellationToken(ctx), reporter)

	res := h.Wait()
	switch res.State {
	case transfer.StateCompleted:
		return 0
	case transfer.StateCancelled:
		return 130
	default:
		return 1
	}
}
