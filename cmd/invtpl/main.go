// Command invtpl manages a store of invoice templates and renders them.
//
// Usage:
//
//	invtpl [global flags] <command> [flags] [args]
//
// Global flags select the configuration (--config, or INVTPL_CONFIG), override
// the store root (--root) and the log level (--log-level). A .env file in the
// working directory is loaded before the configuration.
//
// Run "invtpl help" for the list of commands.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lvillar/invtpl/config"
	"github.com/lvillar/invtpl/service"
)

// app carries what every command needs.
type app struct {
	cfg *config.Config
	svc *service.Service
	log *logrus.Logger
	out io.Writer
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(a *app, args []string) error
}

var commands = map[string]command{}

func register(c command) { commands[c.name] = c }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "invtpl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	envErr := godotenv.Load()

	flags := pflag.NewFlagSet("invtpl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "path to the YAML configuration file")
	root := flags.String("root", "", "template store directory (overrides the configuration)")
	logLevel := flags.String("log-level", "", "log level (overrides the configuration)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printUsage(stdout)
			return nil
		}
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(stdout)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, run \"invtpl help\"", rest[0])
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *root != "" {
		cfg.Store.Root = *root
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log, err := cfg.NewLogger(stderr)
	if err != nil {
		return err
	}
	if envErr != nil {
		log.Debug("No .env file found")
	}

	svc, err := service.Open(cfg, log)
	if err != nil {
		return err
	}
	return cmd.run(&app{cfg: cfg, svc: svc, log: log, out: stdout}, rest[1:])
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: invtpl [--config file] [--root dir] [--log-level level] <command> [args]\n\nCommands:\n")
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(&b, "  %-32s %s\n", c.usage, c.summary)
	}
	fmt.Fprint(w, b.String())
}

// newFlags returns the flag set of a command. Errors are returned, not
// printed twice.
func newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func positional(fs *pflag.FlagSet, usage string, n int) ([]string, error) {
	if fs.NArg() != n {
		return nil, fmt.Errorf("expected %d argument(s)\n\nusage: invtpl %s", n, usage)
	}
	return fs.Args(), nil
}
