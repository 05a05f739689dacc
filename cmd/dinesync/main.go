// Package main starts the dinesync directory process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	directorycmd "github.com/mwslabs/dinesync/internal/cmd/directory"
	"github.com/mwslabs/dinesync/internal/platform/config"
)

func main() {
	if err := config.LoadDotenv(".env"); err != nil {
		config.Exitf("load dotenv: %v", err)
	}
	cfg, err := directorycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DINESYNC] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := directorycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
