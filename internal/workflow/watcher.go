package workflow

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/conductor/internal/chain"
)

// Watcher observes the chain store directory and feeds chain completions
// into the workflow manager, so chain_complete gates open without
// polling.
type Watcher struct {
	manager   Watched
	lifecycle chain.Lifecycle
	fsw       *fsnotify.Watcher
	logger    *logging.Logger
	done      chan struct{}
}

// Watched is the slice of Manager the watcher needs.
type Watched interface {
	OnChainComplete(ctx context.Context, chainID string) ([]string, error)
}

// NewWatcher starts watching dir for chain record updates.
func NewWatcher(dir string, manager Watched, lifecycle chain.Lifecycle) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		manager:   manager,
		lifecycle: lifecycle,
		fsw:       fsw,
		logger:    logging.New().WithComponent("chain-watcher"),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if filepath.Ext(name) != ".json" || strings.HasSuffix(name, ".tmp") {
				continue
			}
			w.check(strings.TrimSuffix(name, ".json"))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) check(chainID string) {
	ctx := context.Background()
	status, err := w.lifecycle.GetChainStatus(ctx, chainID)
	if err != nil || status.Status != chain.ChainComplete {
		return
	}
	advanced, err := w.manager.OnChainComplete(ctx, chainID)
	if err != nil {
		w.logger.Warn("chain completion dispatch failed", map[string]interface{}{
			"chain_id": chainID,
			"error":    err.Error(),
		})
		return
	}
	if len(advanced) > 0 {
		w.logger.Info("chain completion advanced workflows", map[string]interface{}{
			"chain_id":  chainID,
			"workflows": advanced,
		})
	}
}
