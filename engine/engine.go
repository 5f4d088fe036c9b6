// Package engine runs the long-lived modules of the sync service (per-user
// chat syncers, the metrics reporter) with graceful restart and shutdown.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/strandapp/strand/utils/log"
)

var gracefulRetryDelay = 3 * time.Second

// Module is a long running unit of work whose lifecycle is bound to the
// engine's context.
type Module interface {
	// RunModule blocks until the module stops. A nil return is a clean
	// exit; an error triggers a restart after a short delay.
	RunModule(ctx context.Context) error

	// Name uniquely identifies the module instance. Multiple instances of
	// the same module type must carry distinct names.
	Name() string
}

// Engine owns a set of modules, each running in its own goroutine.
type Engine struct {
	modules []Module

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(ctx context.Context, modules ...Module) *Engine {
	ctx, cancel := context.WithCancel(ctx)
	return &Engine{
		modules: modules,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddModule registers a module. Must be called before Run.
func (e *Engine) AddModule(m Module) {
	e.modules = append(e.modules, m)
}

// Run executes all modules and blocks until every one of them finished.
func (e *Engine) Run() {
	var wg sync.WaitGroup
	for _, m := range e.modules {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			log.Log.Infof("start engine module %s", m.Name())
			RunModuleWithGracefulRestart(e.ctx, m)
			log.Log.Infof("module %s finished execution", m.Name())
		}(m)
	}
	wg.Wait()
}

// Shutdown cancels the engine context. Run returns once every module
// observed the cancellation and exited.
func (e *Engine) Shutdown() {
	log.Log.Infoln("starting graceful shutdown")
	e.cancel()
}

// RunModuleWithGracefulRestart keeps the module alive: an error exit is
// logged and the module restarts after a short delay, until the context is
// canceled or the module exits cleanly.
func RunModuleWithGracefulRestart(ctx context.Context, module Module) {
	for {
		err := module.RunModule(ctx)
		if err == nil {
			return
		}
		log.Log.Errorf("module %s exited with error %v, retry in %s",
			module.Name(), err, gracefulRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(gracefulRetryDelay):
		}
	}
}
