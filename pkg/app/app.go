// Package app runs a server through its lifecycle and blocks until a
// termination signal arrives.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type Server interface {
	Init() error
	Start() error
	Stop() error
}

func Run(s Server) error {
	if err := s.Init(); err != nil {
		return fmt.Errorf("init failed cause=%s", err.Error())
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("start failed cause=%s", err.Error())
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return s.Stop()
}
