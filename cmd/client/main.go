package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"iou_ledger/internal/service/app"
	"iou_ledger/internal/utils/log"
)

const defaultHost = "localhost:9090"

func main() {
	// os.Args[0] is the program name, os.Args[1:] are arguments
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: client <username>")
		os.Exit(2)
	}

	username := os.Args[1]

	host := os.Getenv("SERVER_ADDRESS")
	if host == "" {
		host = defaultHost
	}

	keyDir, err := os.UserConfigDir()
	if err != nil {
		keyDir = "."
	}
	keyDir = filepath.Join(keyDir, "iou-ledger")

	if err := log.Init("error"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inbox := app.NewApp(host, keyDir)
	go func() {
		<-ctx.Done()
		inbox.Stop()
	}()
	inbox.Run(ctx, username)
}
