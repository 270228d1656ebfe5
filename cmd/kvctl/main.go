package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

const usage = `Usage: kvctl [-config file.yaml] [-data dir] <command> [args]

Commands:
  set <key> <value>   store a value
  get <key>           print a value
  rm <key>            remove a key
  stats               print engine statistics
  inspect <file>      dump a table's footer, index and commands
`

// errUsage marks bad invocations that should print usage and exit 2
var errUsage = errors.New("invalid usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kvctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	configFile := fs.String("config", "", "YAML configuration file")
	dataDir := fs.String("data", "./data/kv", "Data directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(fs, *configFile, *dataDir)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("✗ "+err.Error()))
		return 1
	}

	err = dispatch(cfg, fs.Args(), stdout, stderr)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotFound):
		return 1
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, errorStyle.Render("✗ "+err.Error()))
		fmt.Fprint(stderr, usage)
		return 2
	default:
		fmt.Fprintln(stderr, errorStyle.Render("✗ "+err.Error()))
		return 1
	}
}

// loadConfig reads the config file when given; an explicit -data flag
// overrides the file's data_dir
func loadConfig(fs *flag.FlagSet, configFile, dataDir string) (config.Config, error) {
	if configFile == "" {
		cfg := config.Default(dataDir)
		cfg.LogLevel = "warn"
		return cfg, nil
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "data" {
			cfg.DataDir = dataDir
		}
	})
	return cfg, nil
}

var errNotFound = errors.New("key not found")

func dispatch(cfg config.Config, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, args := args[0], args[1:]
	if cmd == "inspect" {
		if len(args) != 1 {
			return fmt.Errorf("%w: inspect takes one table file", errUsage)
		}
		return inspect(args[0], lsm.TableOptions{UseMmap: cfg.UseMmap}, stdout)
	}

	want := map[string]int{"set": 2, "get": 1, "rm": 1, "stats": 0}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s)", errUsage, cmd, n)
	}

	registry := metrics.DefaultRegistry()
	engine, err := lsm.Open(cfg.EngineOptions(cfg.Logger(), registry))
	if err != nil {
		return err
	}
	defer engine.Close()

	switch cmd {
	case "set":
		if err := engine.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(stdout, successStyle.Render("✓ OK"))
	case "get":
		value, found, err := engine.Get(args[0])
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(stderr, mutedStyle.Render("(not found)"))
			return errNotFound
		}
		fmt.Fprintln(stdout, value)
	case "rm":
		if err := engine.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(stdout, successStyle.Render("✓ OK"))
	case "stats":
		fmt.Fprintln(stdout, renderStats(cfg.DataDir, engine.Stats(), engine.Tables()))
		summary, err := renderMetrics(registry)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, summary)
	}

	return engine.Close()
}

func inspect(path string, opts lsm.TableOptions, stdout io.Writer) error {
	table, err := lsm.OpenSSTable(path, opts)
	if err != nil {
		return err
	}
	defer table.Close()

	commands, err := table.Commands()
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, renderTable(table, commands))
	return nil
}
