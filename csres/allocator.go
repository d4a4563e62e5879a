// Package csres allocates cross-scheduler resources, values owned by this
// system rather than the batch scheduler, and injects them into job scripts
// through @@{lico_*} placeholders. Allocation for one resource code is
// serialized host-wide by an exclusive file lock.
package csres

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/licoproject/lico-core/pkg/constant"
	"github.com/licoproject/lico-core/pkg/errors"
	"golang.org/x/sys/unix"
)

// Allocator hands out one free value per call for a single resource code.
type Allocator interface {
	Code() string
	// NextValue returns a value absent from already, or NoMoreCsres.
	NextValue(already map[string]bool) (string, error)
}

func NewPortAllocator(begin, end int) *PortAllocator {
	return &PortAllocator{
		begin: begin,
		end:   end,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PortAllocator draws uniformly at random from [begin, end] minus the used set.
type PortAllocator struct {
	mux   sync.Mutex
	begin int
	end   int
	rnd   *rand.Rand
}

func (p *PortAllocator) Code() string {
	return constant.CsresPort.String()
}

func (p *PortAllocator) NextValue(already map[string]bool) (string, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	free := make([]string, 0, p.end-p.begin+1)
	for n := p.begin; n <= p.end; n++ {
		v := fmt.Sprintf("%d", n)
		if !already[v] {
			free = append(free, v)
		}
	}
	if len(free) == 0 {
		return "", errors.NewCsresError(errors.NoMoreCsres, p.Code())
	}
	return free[p.rnd.Intn(len(free))], nil
}

// FileLock host-wide exclusive lock for one resource code.
type FileLock struct {
	path string
	f    *os.File
}

func NewFileLock(dir, code string) *FileLock {
	return &FileLock{path: filepath.Join(dir, fmt.Sprintf("lico_csres_%s.lock", code))}
}

// Lock blocks until the exclusive lock is acquired.
func (l *FileLock) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("csres lock open %s failed cause=%s", l.path, err.Error())
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("csres lock flock %s failed cause=%s", l.path, err.Error())
	}
	l.f = f
	return nil
}

func (l *FileLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
	l.f = nil
	return err
}
