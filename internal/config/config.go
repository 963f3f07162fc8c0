// Package config defines the CLI/file configuration surface, parsed with
// go-flags the way the teacher's daemon command parses its flags, plus an
// fsnotify-driven hot-reload fan-out for settings that can change without a
// restart (log level, CPU batch size, Stratum difficulty, idle timeout).
package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	flags "github.com/jessevdk/go-flags"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
)

// NodeConfig configures the node HTTP client.
type NodeConfig struct {
	BaseURL string `long:"node.url" description:"Base URL of the chainweb node" default:"http://localhost:1848"`
	Network string `long:"node.network" description:"Chainweb network name" default:"mainnet01"`
}

// MiningConfig configures which chains to mine and how.
type MiningConfig struct {
	Chains  []uint16 `long:"mining.chain" description:"Chain id to mine (repeatable)"`
	Timeout int      `long:"mining.timeout" description:"Seconds between idle hashrate log ticks while waiting for a solution or update" default:"30"`
}

// WorkerConfig configures the CPU worker.
type WorkerConfig struct {
	Threads   int    `long:"worker.threads" description:"CPU worker thread count (0 = all cores)"`
	BatchSize uint64 `long:"worker.batch-size" description:"Nonces hashed per batch" default:"100000"`
}

// StratumConfig configures the optional Stratum server.
type StratumConfig struct {
	Enabled    bool    `long:"stratum.enabled" description:"Run the Stratum server"`
	ListenAddr string  `long:"stratum.listen" description:"Stratum TCP listen address" default:":3333"`
	Difficulty float64 `long:"stratum.difficulty" description:"Initial per-session difficulty" default:"1"`
}

// LoggingConfig configures chainlog.
type LoggingConfig struct {
	Level   string `long:"logging.level" description:"Log level (trace, debug, info, warn, error, critical)" default:"info"`
	LogFile string `long:"logging.file" description:"Optional log file path, rotated at 10MiB"`
}

// DiagnosticsConfig configures the status/dashboard HTTP server.
type DiagnosticsConfig struct {
	Enabled    bool   `long:"diagnostics.enabled" description:"Run the diagnostics HTTP server"`
	ListenAddr string `long:"diagnostics.listen" description:"Diagnostics HTTP listen address" default:":8080"`
}

// ReloadConfig configures the optional hot-reload file watcher. When File is
// set, main builds a Watcher over it and fans Reloadable values out to every
// coordinator, the active worker, and the log-level watcher.
type ReloadConfig struct {
	File string `long:"reload.file" description:"JSON file to watch for live log level/difficulty/batch-size/timeout changes"`
}

// Config is the full CLI surface, assembled the way the teacher's main
// composes its flags.Options groups.
type Config struct {
	Node        NodeConfig        `group:"Node"`
	Mining      MiningConfig      `group:"Mining"`
	Worker      WorkerConfig      `group:"Worker"`
	Stratum     StratumConfig     `group:"Stratum"`
	Logging     LoggingConfig     `group:"Logging"`
	Diagnostics DiagnosticsConfig `group:"Diagnostics"`
	Reload      ReloadConfig      `group:"Reload"`
}

// Parse parses os.Args (excluding argv[0]) into a Config.
func Parse(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return nil, minererr.Wrap(minererr.Config, "parsing command line flags", err)
	}
	return &cfg, nil
}

// Reloadable fields, fanned out to subscribers on file change. Any field
// left at its zero value is left untouched by subscribers, so a reload
// file only needs to list the settings an operator actually wants to
// change.
type Reloadable struct {
	LogLevel   string
	Difficulty float64
	BatchSize  uint64
	Timeout    time.Duration
}

// Watcher watches a config file for changes and republishes a Reloadable
// snapshot to every subscriber, the way a long-running daemon picks up
// operator edits without a restart.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu   sync.Mutex
	subs []chan Reloadable

	load func(path string) (Reloadable, error)
}

// NewWatcher creates a Watcher for path, using load to turn the file's
// bytes into a Reloadable snapshot.
func NewWatcher(path string, load func(string) (Reloadable, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, minererr.Wrap(minererr.Config, "creating file watcher", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, minererr.Wrap(minererr.Config, "watching config file", err)
	}
	return &Watcher{path: path, fsw: fsw, load: load}, nil
}

// Subscribe returns a channel that receives a fresh Reloadable each time
// the watched file changes.
func (w *Watcher) Subscribe() <-chan Reloadable {
	ch := make(chan Reloadable, 1)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Run processes filesystem events until the watcher is closed.
func (w *Watcher) Run() {
	log := chainlog.NewSubLogger("CONF")
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r, err := w.load(w.path)
			if err != nil {
				log.Warnf("reload %s: %v", w.path, err)
				continue
			}
			w.publish(r)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) publish(r Reloadable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
