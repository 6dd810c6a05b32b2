package tracker

import (
	"context"
	"sync"
)

// View is a presentation attachment to a Tracker. Mounting subscribes and bootstraps;
// unmounting only detaches, reporting keeps running in the background.
type View struct {
	tracker  *Tracker
	onChange func(Status)

	mu          sync.Mutex
	unsubscribe func()
}

func NewView(t *Tracker, onChange func(Status)) *View {
	return &View{tracker: t, onChange: onChange}
}

func (v *View) Mount(ctx context.Context) {
	v.mu.Lock()
	if v.unsubscribe == nil {
		v.unsubscribe = v.tracker.Subscribe(v.onChange)
	}
	v.mu.Unlock()
	v.tracker.Bootstrap(ctx)
}

func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

func (v *View) Start(ctx context.Context) {
	v.tracker.Start(ctx)
}

func (v *View) Stop(ctx context.Context) {
	v.tracker.Stop(ctx, true)
}
