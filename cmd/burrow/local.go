package main

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/availability"
	"github.com/cuemby/burrow/pkg/controller"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
)

// local is the stack the one-shot commands run against: the store of the
// data directory with a scheduler that never loops.
type local struct {
	store      *storage.BoltStore
	scheduler  *scheduler.Scheduler
	controller *controller.Controller
}

func openLocal() (*local, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%w (is a node serving %s?)", err, cfg.DataDir)
	}
	sched := scheduler.NewScheduler(store,
		scheduler.WithInterval(cfg.Scheduler.Interval, cfg.Scheduler.WorkingPeriod))
	// One-shot commands see each revision once, caching would only cost memory
	checker := availability.NewChecker(sched, store, 0)
	return &local{
		store:      store,
		scheduler:  sched,
		controller: controller.NewController(store, sched, checker),
	}, nil
}

func (l *local) Close() error {
	return l.store.Close()
}

// withLocal runs fn against the local stack and closes it afterwards
func withLocal(fn func(l *local) error) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}
