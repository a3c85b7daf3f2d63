package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roffe/slcan/cmd/slcand/cmd"
)

// shutdownGrace is how long the engine gets to close the bus after a signal.
const shutdownGrace = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Printf("received %v, closing bus and line", s)
		cancel()
		<-time.After(shutdownGrace)
		log.Fatalf("engine did not stop within %s, exiting", shutdownGrace)
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
