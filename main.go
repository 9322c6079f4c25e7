package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoGir/qabel-core/cmd"
	"github.com/JoGir/qabel-core/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := os.Getenv("QABEL_LOG")
	if level != "" {
		if err := logging.Init(logging.Config{Level: level, Format: "console"}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer logging.Sync()
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "ls":
		runLs(ctx, os.Args[2:])
	case "put":
		runPut(ctx, os.Args[2:])
	case "get":
		runGet(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "mkdir":
		runMkdir(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "keyring":
		runKeyring(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var opts cmd.InitOptions
	fs.StringVar(&opts.Backend, "backend", "local", "block backend: local or s3")
	fs.StringVar(&opts.LocalRoot, "root", "qabel-blocks", "local backend root directory")
	fs.StringVar(&opts.Prefix, "prefix", "default", "volume prefix")
	fs.StringVar(&opts.S3.Bucket, "bucket", "", "S3 bucket")
	fs.StringVar(&opts.S3.Region, "region", "us-east-1", "S3 region")
	fs.StringVar(&opts.S3.Endpoint, "endpoint", "", "S3 endpoint (empty for AWS)")
	fs.StringVar(&opts.S3.AccessKey, "access-key", "", "S3 access key (empty for default chain)")
	fs.StringVar(&opts.S3.SecretKey, "secret-key", "", "S3 secret key")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	opts.S3.Prefix = opts.Prefix
	cmd.Init(ctx, opts)
}

func runLs(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cmd.List(ctx, fs.Arg(0))
}

func runPut(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: qabel put <local-file> <remote-path>")
		os.Exit(1)
	}
	cmd.Put(ctx, fs.Arg(0), fs.Arg(1))
}

func runGet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qabel get <remote-path> [local-file]")
		os.Exit(1)
	}
	local := "-"
	if fs.NArg() > 1 {
		local = fs.Arg(1)
	}
	cmd.Get(ctx, fs.Arg(0), local)
}

func runRm(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qabel rm <remote-path>")
		os.Exit(1)
	}
	cmd.Rm(ctx, fs.Arg(0))
}

func runMkdir(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qabel mkdir <remote-path>")
		os.Exit(1)
	}
	cmd.Mkdir(ctx, fs.Arg(0))
}

func runDiff(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cmd.Diff(ctx)
}

func runKeyring(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qabel keyring <save|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "save":
		cmd.KeyringSave()
	case "delete":
		cmd.KeyringDelete()
	case "status":
		cmd.KeyringStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`qabel - encrypted box storage client

Usage:
  qabel init [-backend local|s3] [-prefix name] [flags]   Create or join a volume
  qabel ls [path]                                         List a remote directory
  qabel put <local-file> <remote-path>                    Upload a file
  qabel get <remote-path> [local-file]                    Download a file
  qabel rm <remote-path>                                  Delete a file or folder
  qabel mkdir <remote-path>                               Create a folder
  qabel diff                                              Diff listing against last snapshot
  qabel keyring <save|delete|status>                      Manage the root key in the OS keyring

Environment:
  QABEL_PASSPHRASE   Volume passphrase (skips the prompt)
  QABEL_LOG          Log level (debug, info, warn, error)`)
}
