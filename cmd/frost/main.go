package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	var showConfig bool
	var interval time.Duration

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/frost/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&showConfig, "print-config", false, "print the effective configuration and exit")
	flag.DurationVar(&interval, "interval", 0, "poll interval (overrides poll-interval)")
	flag.Parse()

	if showVersion {
		fmt.Printf("Frost - Warsaw Vehicle Position Collector\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath, interval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if showConfig {
		out, err := printConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	if err := runCollector(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
