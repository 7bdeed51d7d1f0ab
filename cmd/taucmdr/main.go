// Command taucmdr installs and configures performance measurement software.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"

	"taucmdr/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			color.Danger.Printf("\n-> Received %v. Cancelling, press Ctrl+C again to exit now\n", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		<-sigs
		color.Danger.Println("\n-> Second interrupt received. Forcing immediate exit.")
		os.Exit(130)
	}()

	code := cli.Execute(ctx, os.Args[1:])
	if ctx.Err() != nil && code != 0 {
		code = 130
	}
	cancel()
	os.Exit(code)
}
