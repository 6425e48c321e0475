package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var (
	configPath = flag.String("config", "", "Path to the TOML config file (default: VIRE_CONFIG, then vire-analyzer.toml beside the binary)")
	quiet      = flag.Bool("quiet", false, "Suppress the startup banner")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
