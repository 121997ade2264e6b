package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/driftwatch/internal/backup"
)

// runBackup implements the "driftwatch backup" subcommand.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dbPath := fs.String("db", "driftwatch.db", "path to the database file")
	configPath := fs.String("config", "", "path to the configuration file to include (optional)")
	out := fs.String("out", "", "output archive path (default driftwatch-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	archive := *out
	if archive == "" {
		archive = fmt.Sprintf("driftwatch-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := backup.Backup(ctx, *dbPath, *configPath, archive); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archive)
}

// runRestore implements the "driftwatch restore" subcommand.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: driftwatch restore [-target dir] [-force] <archive.tar.gz>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := backup.Restore(ctx, fs.Arg(0), *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored into %s\n", *target)
}
