package context

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/far4599/video-downloader-api/internal/pkg/log"
)

// NewSignalledContext is cancelled on the first SIGINT or SIGTERM.
func NewSignalledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer cancel()
		defer signal.Stop(done)

		sig := <-done
		log.Logger.Infow("received signal, shutting down", "signal", sig.String())
	}()

	return ctx
}
