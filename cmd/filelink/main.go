// Command filelink is the process entry point for this device
// connector: config/logging/repository/store bootstrap plus a small
// set of administrative subcommands (flag-per-subcommand,
// signal.NotifyContext, no cobra).
//
// This is demonstration glue, not the core device-connector logic: that
// lives in internal/filemanagement and internal/firmware and is
// reachable from any transport a real deployment wires in. serve
// substitutes an in-process loopback transport for that real connection
// so the module is runnable end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command provided")
	}

	cmd := args[0]
	rest := args[1:]
	switch cmd {
	case "serve":
		return handleServe(ctx, rest)
	case "list":
		return handleList(ctx, rest)
	case "delete":
		return handleDelete(ctx, rest)
	case "purge":
		return handlePurge(ctx, rest)
	case "install":
		return handleInstall(ctx, rest)
	case "report-boot":
		return handleReportBoot(ctx, rest)
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `filelink - device file transfer and firmware update connector

Usage:
  filelink serve --config <path> [--script <path>]
  filelink list --config <path> --device <key>
  filelink delete --config <path> --device <key> --name <file>
  filelink purge --config <path> --device <key>
  filelink install --config <path> --device <key> --name <file>
  filelink report-boot --config <path> --device <key>
  filelink version`)
}
