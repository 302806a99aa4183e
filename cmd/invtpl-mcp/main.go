// Command invtpl-mcp is an MCP (Model Context Protocol) server that exposes
// the invoice template store to AI assistants.
//
// # Installation
//
//	go install github.com/lvillar/invtpl/cmd/invtpl-mcp@latest
//
// # Configuration
//
// The server reads the YAML file named by --config or INVTPL_CONFIG. A .env
// file in the working directory is loaded first. Logs go to stderr; stdout
// carries the protocol.
//
// # Available Tools
//
//   - list_templates, get_template, save_template, delete_template
//   - duplicate_template, migrate_template
//   - ingest_image, resolve_asset
//   - render_template, generate_preview
//
// # Available Resources
//
//   - template://list : Summary of every template
//   - template://{id} : Definition of one template
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lvillar/invtpl/config"
	"github.com/lvillar/invtpl/mcp"
	"github.com/lvillar/invtpl/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "invtpl-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	envErr := godotenv.Load()

	flags := pflag.NewFlagSet("invtpl-mcp", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML configuration file")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("invtpl-mcp", mcp.Version)
		return nil
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	log, err := cfg.NewLogger(os.Stderr)
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

	server := mcp.NewServer()
	server.SetLogger(log)
	mcp.RegisterDefaultTools(server, svc)
	mcp.RegisterDefaultResources(server, svc)

	log.WithFields(logrus.Fields{"root": cfg.Store.Root, "version": mcp.Version}).Info("Serving templates over stdio")
	return server.Run()
}
