package policyload

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/davidahmann/execgate/core/policy"
)

// SwapEvent reports one reload attempt. Err is nil when the new policy
// compiled and was swapped in; on error the store keeps the last good policy.
type SwapEvent struct {
	Dir    string
	Policy *policy.Policy
	Err    error
}

// Watch recompiles the policy directory whenever a *.policy entry changes and
// swaps the store only on a successful compile. The directory is watched
// rather than the individual files so editor rename-and-replace saves are
// caught. Watch blocks until ctx is done or the watcher fails; onSwap may be
// nil.
func Watch(ctx context.Context, dir string, store *Store, onSwap func(SwapEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	notify := func(event SwapEvent) {
		if onSwap != nil {
			onSwap(event)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(event.Name), policyExtension) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			reloaded, err := LoadDir(dir)
			if err != nil {
				notify(SwapEvent{Dir: dir, Err: err})
				continue
			}
			store.Swap(reloaded)
			notify(SwapEvent{Dir: dir, Policy: reloaded})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			notify(SwapEvent{Dir: dir, Err: err})
		}
	}
}
