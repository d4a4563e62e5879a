package utils

import "sync"

type WaitGroupWrapper struct {
	sync.WaitGroup
}

func (w *WaitGroupWrapper) Wrap(f func()) {
	w.Add(1)
	go func() {
		defer w.Done()
		f()
	}()
}

// Wrap fire-and-forget goroutine
func Wrap(f func()) {
	go f()
}
