// Command chainweb-miner runs a chainweb-style Blake2s-256 mining client:
// either a CPU worker or a Stratum server feeding solutions back to the node,
// one coordinator goroutine per configured chain.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/coordinator"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/diagnostics"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/node/chainweb"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/stratum"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker/cpuworker"
)

var log = chainlog.NewSubLogger("MAIN")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.Logging.LogFile != "" {
		if err := chainlog.InitLogRotator(cfg.Logging.LogFile); err != nil {
			return err
		}
	}
	chainlog.SetLevel(chainlog.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		cancel()
	}()

	nodeClient := chainweb.New(chainweb.Config{
		BaseURL: cfg.Node.BaseURL,
		Network: cfg.Node.Network,
	})

	var w worker.Worker
	var diagServer *diagnostics.Server
	var stratumServer *stratum.Server

	if cfg.Stratum.Enabled {
		stratumServer = stratum.New(stratum.Config{
			ListenAddr:        cfg.Stratum.ListenAddr,
			InitialDifficulty: cfg.Stratum.Difficulty,
		})
		w = stratumServer
		go func() {
			if err := stratumServer.Serve(ctx); err != nil {
				log.Errorf("stratum server: %v", err)
			}
		}()
	} else {
		w = cpuworker.New(cpuworker.Config{
			Threads:   cfg.Worker.Threads,
			BatchSize: cfg.Worker.BatchSize,
		})
	}

	if cfg.Diagnostics.Enabled {
		diagServer = diagnostics.New()
		httpSrv := &http.Server{
			Addr:    cfg.Diagnostics.ListenAddr,
			Handler: diagServer.Router(),
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("diagnostics server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	var reloader *config.Watcher
	if cfg.Reload.File != "" {
		reloader, err = config.NewWatcher(cfg.Reload.File, loadReloadable)
		if err != nil {
			return err
		}
		go reloader.Run()
		defer reloader.Close()
		go watchLogLevel(ctx, reloader.Subscribe())
	}

	chains := cfg.Mining.Chains
	if len(chains) == 0 {
		chains = []uint16{0}
	}

	var wg sync.WaitGroup
	for _, chainID := range chains {
		chain := core.NewChainId(chainID)
		coord := coordinator.New(coordinator.Config{
			Chain:   chain,
			Timeout: time.Duration(cfg.Mining.Timeout) * time.Second,
		}, nodeClient, w)

		if reloader != nil {
			go coord.Watch(ctx, reloader.Subscribe())
		}

		wg.Add(1)
		go func(chain core.ChainId) {
			defer wg.Done()
			if err := coord.Run(ctx); err != nil && err != context.Canceled {
				log.Errorf("chain %s: coordinator exited: %v", chain, err)
			}
		}(chain)

		if diagServer != nil {
			go pollDiagnostics(ctx, diagServer, chainID, w)
		}
	}

	if reloader != nil {
		if cw, ok := w.(interface {
			Watch(context.Context, <-chan config.Reloadable)
		}); ok {
			go cw.Watch(ctx, reloader.Subscribe())
		}
	}

	wg.Wait()

	if stratumServer != nil {
		stratumServer.Shutdown()
	}
	return nil
}

// loadReloadable parses the hot-reload file into a config.Reloadable
// snapshot. Every field is optional; a field left zero in the file leaves
// the corresponding running setting untouched.
func loadReloadable(path string) (config.Reloadable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return config.Reloadable{}, err
	}
	var raw struct {
		LogLevel      string  `json:"log_level"`
		Difficulty    float64 `json:"difficulty"`
		BatchSize     uint64  `json:"batch_size"`
		TimeoutSecond float64 `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return config.Reloadable{}, err
	}
	return config.Reloadable{
		LogLevel:   raw.LogLevel,
		Difficulty: raw.Difficulty,
		BatchSize:  raw.BatchSize,
		Timeout:    time.Duration(raw.TimeoutSecond * float64(time.Second)),
	}, nil
}

// watchLogLevel applies LogLevel changes from the hot-reload file directly,
// since chainlog.SetLevel is process-global rather than per-component.
func watchLogLevel(ctx context.Context, reload <-chan config.Reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reload:
			if !ok {
				return
			}
			if r.LogLevel != "" {
				chainlog.SetLevel(chainlog.ParseLevel(r.LogLevel))
				log.Infof("log level reloaded to %s", r.LogLevel)
			}
		}
	}
}

func pollDiagnostics(ctx context.Context, d *diagnostics.Server, chain uint16, w worker.Worker) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.UpdateStatus(chain, w, 0)
		}
	}
}
