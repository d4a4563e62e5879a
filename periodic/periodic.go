// Package periodic runs registered background tasks on fixed intervals.
// Each task runs at most one instance at a time; a tick that arrives while
// the previous run is still going is skipped.
package periodic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/utils"
)

type TaskFunc func(ctx context.Context)

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	running  int32
}

type Scheduler struct {
	mux    sync.Mutex
	tasks  []*task
	ctx    context.Context
	cancel context.CancelFunc
	wg     utils.WaitGroupWrapper
	begun  bool
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Register adds a task; must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.tasks = append(s.tasks, &task{name: name, interval: interval, fn: fn})
}

func (s *Scheduler) Start() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.begun {
		return
	}
	s.begun = true
	for _, t := range s.tasks {
		t := t
		s.wg.Wrap(func() { s.loop(t) })
	}
}

func (s *Scheduler) loop(t *task) {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
			s.run(t)
		}
	}
}

func (s *Scheduler) run(t *task) {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		log.Logger().Warn("periodic task=%s previous run still active, tick skipped", t.name)
		return
	}
	defer atomic.StoreInt32(&t.running, 0)
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("periodic task=%s panic cause=%v", t.name, r)
		}
	}()
	t.fn(s.ctx)
}

// TriggerAll runs every task once in the calling goroutine, used at startup.
func (s *Scheduler) TriggerAll() {
	s.mux.Lock()
	tasks := make([]*task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mux.Unlock()
	for _, t := range tasks {
		s.run(t)
	}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
