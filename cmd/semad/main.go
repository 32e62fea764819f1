package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/service"
)

func main() {
	addr := flag.String("addr", config.DaemonAddr(), "listen address for the analysis service (tcp)")
	flag.Parse()

	srv, err := service.NewServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "semad:", err)
		os.Exit(1)
	}
	if err := srv.Listen(*addr); err != nil {
		fmt.Fprintln(os.Stderr, "semad: listen failed:", err)
		os.Exit(1)
	}
	fmt.Println("semad listening on", srv.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	if err := srv.Serve(); err != nil {
		fmt.Fprintln(os.Stderr, "semad: serve failed:", err)
		os.Exit(1)
	}
}
