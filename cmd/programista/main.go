package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/programista/programista/internal/config"
	"github.com/programista/programista/internal/log"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `usage: programista [-version] <command> [flags] [args]

commands:
  schedule   show the schedule of one source         schedule [-force] [-days N] <provider> <source> [day]
  search     search cached and remote schedules      search [-kind K] [-provider P] [-from D] [-to D] <query>
  sources    list the sources of a provider          sources <provider> [day]
  favorites  list, add, remove or show favorites     favorites [list|add|remove|show] ...
  sync       download every schedule                 sync [-providers a,b] [-days N] [-archive-days d1,d2] [-force]
  prune      drop cached days older than N days      prune [-days N]
  serve      run the local HTTP bridge               serve [-listen addr]
  feedback   send a bug report or suggestion         feedback -title T -description D [-email E] [-attach-log]
  config     write the effective configuration to config.yaml
  clear      delete all cached state
`

type command func(a *app, args []string) error

var commands = map[string]command{
	"schedule":  runSchedule,
	"search":    runSearch,
	"sources":   runSources,
	"favorites": runFavorites,
	"sync":      runSync,
	"prune":     runPrune,
	"serve":     runServe,
	"feedback":  runFeedback,
}

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("programista %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return flag.ErrHelp
	}
	name, args := strings.ToLower(args[0]), args[1:]

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch name {
	case "clear":
		if err := config.ClearCache(cfg); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	case "config":
		if err := config.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Println("configuration written")
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		flag.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting programista", "version", Version, "command", name)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return cmd(a, args)
}
