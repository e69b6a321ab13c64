// Command callboard-seed loads a directory fixture into the configured store
// and prints a bearer token for every seeded user.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"callboard/internal/auth"
	"callboard/internal/config"
	"callboard/internal/database"
	"callboard/internal/logging"
	"callboard/internal/seed"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("callboard-seed", flag.ContinueOnError)
	fixturePath := flags.String("fixture", "", "path to the JSON directory fixture")
	ttl := flags.Duration("ttl", 24*time.Hour, "lifetime of printed tokens (0 for no expiry)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *fixturePath == "" {
		return fmt.Errorf("-fixture is required")
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger, err := logging.New(*cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fixture, err := seed.LoadFixture(*fixturePath)
	if err != nil {
		return err
	}

	store, err := database.NewManager(cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := seed.Apply(ctx, store, fixture, logger); err != nil {
		return err
	}

	resolver, err := auth.NewResolver(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	tokens, err := seed.Tokens(resolver, fixture, *ttl)
	if err != nil {
		return err
	}
	for _, id := range seed.SortedUserIDs(tokens) {
		fmt.Fprintf(out, "%s\t%s\n", id, tokens[id])
	}
	return nil
}
