package internal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type GracefulShutdownHandler interface {
	Shutdown()          // Triggers a graceful shutdown programmatically.
	ShuttingDown() bool // Quickly checks if a shutdown is in progress.
	Wait()              // Blocks until shutdown tasks are complete.
}

// ShutdownTask is run once when the service shuts down. Tasks run in registration order.
type ShutdownTask struct {
	Fn   func(ctx context.Context) error
	Name string
}

type gracefulShutdown struct {
	quit         chan os.Signal
	shuttingDown chan bool
	exit         func(code int)
	tasks        []ShutdownTask
	timeout      time.Duration
	wg           sync.WaitGroup
	markOnce     sync.Once
}

// NewGracefulShutdown starts waiting for SIGTERM/SIGINT (or Shutdown) and then runs tasks
// sharing one deadline of timeout. The process exits with 1 if a task failed or the deadline passed.
func NewGracefulShutdown(timeout time.Duration, tasks ...ShutdownTask) GracefulShutdownHandler {
	return newGracefulShutdown(timeout, os.Exit, tasks...)
}

func newGracefulShutdown(timeout time.Duration, exit func(int), tasks ...ShutdownTask) *gracefulShutdown {
	gs := &gracefulShutdown{
		quit:         make(chan os.Signal, 1),
		shuttingDown: make(chan bool, 1),
		exit:         exit,
		tasks:        tasks,
		timeout:      timeout,
	}
	gs.wg.Add(1)
	signal.Notify(gs.quit, syscall.SIGINT, syscall.SIGTERM)

	go gs.run()
	return gs
}

func (gs *gracefulShutdown) run() {
	defer gs.wg.Done()
	// Kubernetes sends SIGTERM 30 seconds before killing the pod
	sig := <-gs.quit
	signal.Stop(gs.quit)
	gs.markShuttingDown()
	zap.S().Infow("Received signal, shutting down", "signal", sig.String(), "timeout", gs.timeout)

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	code := 0
	for _, task := range gs.tasks {
		if ctx.Err() != nil {
			zap.S().Errorw("Shutdown tasks did not complete in time", "timeout", gs.timeout, "skipped", task.Name)
			code = 1
			break
		}
		if err := task.Fn(ctx); err != nil {
			zap.S().Errorw("Error during shutdown", "task", task.Name, "error", err)
			code = 1
			continue
		}
		zap.S().Debugf("Shutdown task %s completed", task.Name)
	}
	if code == 0 {
		zap.S().Info("Shutdown tasks completed. Ready to exit.")
	}
	_ = zap.S().Sync()
	gs.exit(code)
}

func (gs *gracefulShutdown) ShuttingDown() bool {
	select {
	case <-gs.shuttingDown:
		// Put the value back, in case it's checked again later during shutdown.
		gs.shuttingDown <- true
		return true
	default:
		return false
	}
}

func (gs *gracefulShutdown) markShuttingDown() {
	gs.markOnce.Do(func() { gs.shuttingDown <- true })
}

func (gs *gracefulShutdown) Shutdown() {
	if gs.ShuttingDown() {
		return
	}
	// Marked before signalling so that requests arriving right after Shutdown see it
	gs.markShuttingDown()
	select {
	case gs.quit <- syscall.SIGTERM:
	default:
	}
}

func (gs *gracefulShutdown) Wait() {
	gs.wg.Wait()
}
