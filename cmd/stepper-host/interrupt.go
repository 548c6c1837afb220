package main

import (
	"context"
	"sync"
)

// interrupter routes Ctrl-C for the whole session: while a command runs it
// cancels that command, at the prompt it runs onIdle.
type interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	onIdle func()
}

// begin returns the context for one command and the func ending it
func (i *interrupter) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()
	return ctx, func() {
		i.mu.Lock()
		i.cancel = nil
		i.mu.Unlock()
		cancel()
	}
}

// interrupt handles one signal. onIdle runs with the lock held, so no
// command can start while the session shuts down.
func (i *interrupter) interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		i.cancel()
		return
	}
	if i.onIdle != nil {
		i.onIdle()
	}
}
