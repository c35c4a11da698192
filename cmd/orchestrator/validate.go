package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arcflow/conductor/pkg/config"
)

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.LoadConfig(config.LoaderOptions{Path: c.Config})
	if err != nil {
		return printLoadError(c.Format, c.Config, err)
	}

	if c.PrintConfig {
		return printExpandedConfig(c.Format, c.Config, cfg)
	}
	printValidateSuccess(c.Format, c.Config)
	return nil
}

func printLoadError(format, file string, err error) error {
	switch format {
	case "json":
		printJSONResult(false, file, err.Error())
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration load error\n\nfile:  %s\nerror: %s\n", file, err)
	default:
		fmt.Fprintf(os.Stderr, "%s: %s\n", file, err)
	}
	return fmt.Errorf("config validation failed")
}

func printValidateSuccess(format, file string) {
	switch format {
	case "json":
		printJSONResult(true, file, "")
	case "verbose":
		fmt.Fprintf(os.Stdout, "Configuration valid\n\nfile: %s\n", file)
	default:
		fmt.Fprintf(os.Stdout, "%s: valid\n", file)
	}
}

func printExpandedConfig(format, file string, cfg *config.Config) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		fmt.Fprintf(os.Stdout, "# expanded configuration from %s\n", file)
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
}

type validateJSON struct {
	Valid bool   `json:"valid"`
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
}

func printJSONResult(valid bool, file, errMsg string) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(validateJSON{Valid: valid, File: file, Error: errMsg})
}
