package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	encounterscmd "github.com/louisbranch/opsroom/internal/cmd/encounters"
)

func main() {
	cfg, err := encounterscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ENCOUNTERS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := encounterscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
