package signal

import (
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// started guards against more than one Interceptor per process.
var started int32

// Interceptor turns OS interrupt signals and shutdown requests into a single
// shutdown notification.
type Interceptor struct {
	// interruptChannel receives the caught OS signals.
	interruptChannel chan os.Signal

	// shutdownRequestChannel is used to request a graceful shutdown from
	// within the application.
	shutdownRequestChannel chan struct{}

	// quit is closed when the main interrupt handler should exit.
	quit chan struct{}

	// shutdownChannel is closed once the main interrupt handler exits.
	shutdownChannel chan struct{}
}

// Intercept starts catching SIGINT, SIGTERM, SIGABRT and SIGQUIT. It may
// only be called once per process.
func Intercept() (*Interceptor, error) {
	if !atomic.CompareAndSwapInt32(&started, 0, 1) {
		return nil, errors.New("intercept already started")
	}

	i := newInterceptor()
	signal.Notify(
		i.interruptChannel, os.Interrupt, syscall.SIGABRT,
		syscall.SIGTERM, syscall.SIGQUIT,
	)
	go i.mainInterruptHandler()

	return i, nil
}

func newInterceptor() *Interceptor {
	return &Interceptor{
		interruptChannel:       make(chan os.Signal, 1),
		shutdownRequestChannel: make(chan struct{}),
		quit:                   make(chan struct{}),
		shutdownChannel:        make(chan struct{}),
	}
}

// mainInterruptHandler waits for a signal or a shutdown request and then
// closes the shutdown channel. It must be run as a goroutine.
func (i *Interceptor) mainInterruptHandler() {
	defer signal.Stop(i.interruptChannel)

	var isShutdown bool
	shutdown := func() {
		// Ignore more than one shutdown signal.
		if isShutdown {
			log.Infof("Already shutting down...")
			return
		}
		isShutdown = true
		log.Infof("Shutting down...")

		close(i.quit)
	}

	for {
		select {
		case sig := <-i.interruptChannel:
			log.Infof("Received %v", sig)
			shutdown()

		case <-i.shutdownRequestChannel:
			log.Infof("Received shutdown request.")
			shutdown()

		case <-i.quit:
			log.Infof("Gracefully shutting down.")
			close(i.shutdownChannel)

			return
		}
	}
}

// Alive returns true if the main interrupt handler has not been killed.
func (i *Interceptor) Alive() bool {
	select {
	case <-i.quit:
		return false
	default:
		return true
	}
}

// RequestShutdown initiates a graceful shutdown from the application.
func (i *Interceptor) RequestShutdown() {
	select {
	case i.shutdownRequestChannel <- struct{}{}:
	case <-i.quit:
	}
}

// ShutdownChannel returns the channel that will be closed once the main
// interrupt handler has exited.
func (i *Interceptor) ShutdownChannel() <-chan struct{} {
	return i.shutdownChannel
}
