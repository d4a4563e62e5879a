package storage

import (
	"sync"
)

var (
	fac     Factory
	faconne sync.Once
)

func GetFactory() Factory {
	faconne.Do(func() {
		if fac == nil {
			fac = &factory{
				NewJobStore(),
				NewJobRunningStore(),
				NewJobCsresStore(),
				NewPolicyStore(),
				NewAlertStore(),
			}
		}
	})
	return fac
}

// SetFactory test hook
func SetFactory(f Factory) {
	fac = f
	faconne.Do(func() {})
}

type Factory interface {
	JobStore
	JobRunningStore
	JobCsresStore
	PolicyStore
	AlertStore
}

type factory struct {
	JobStore
	JobRunningStore
	JobCsresStore
	PolicyStore
	AlertStore
}
