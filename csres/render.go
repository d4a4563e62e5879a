package csres

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/protocol"
)

var (
	placeholderRe = regexp.MustCompile(`@@\{lico_[^}]*\}`)
	exprRe        = regexp.MustCompile(`^@@\{lico_([a-zA-Z]+)(_?\d+(?:_\d+)*)\}$`)
)

// NewRenderer builds a one-job renderer. Release must be called after the
// submission transaction finishes so competing submitters can observe the
// persisted reservations before the per-code lock drops.
func NewRenderer(lockDir string, allocators map[string]Allocator) *Renderer {
	return &Renderer{lockDir: lockDir, allocators: allocators}
}

type Renderer struct {
	lockDir    string
	allocators map[string]Allocator
	locks      []*FileLock
}

// Render substitutes every placeholder in content, persisting one reservation
// row per allocated value bound to jobId inside q. The same index renders to
// the same value; distinct indices never share a value within one job.
func (r *Renderer) Render(ctx context.Context, q sqlx.ExtContext, jobId int64, content string) (string, error) {
	matches := placeholderRe.FindAllString(content, -1)
	if len(matches) == 0 {
		return content, nil
	}
	// code -> index -> value
	values := map[string]map[int64]string{}
	for _, m := range matches {
		code, indices, err := parseExpr(m)
		if err != nil {
			return "", err
		}
		alloc, ok := r.allocators[code]
		if !ok {
			return "", errors.NewCsresError(errors.AllocatingCsres, code)
		}
		if values[code] == nil {
			if err := r.lock(code); err != nil {
				return "", errors.NewCsresError(errors.AllocatingCsres, code)
			}
			values[code] = map[int64]string{}
		}
		used, err := storage.GetFactory().GetUsedValues(ctx, q, code)
		if err != nil {
			return "", errors.NewCsresError(errors.AllocatingCsres, code)
		}
		already := map[string]bool{}
		for _, v := range used {
			already[v] = true
		}
		for _, v := range values[code] {
			already[v] = true
		}
		for _, idx := range indices {
			if _, ok := values[code][idx]; ok {
				continue
			}
			v, err := alloc.NextValue(already)
			if err != nil {
				return "", err
			}
			values[code][idx] = v
			already[v] = true
			if _, err := storage.GetFactory().CreateJobCsres(ctx, q, &entity.JobCsres{
				JobId:      jobId,
				CsresCode:  code,
				CsresValue: v,
			}); err != nil {
				return "", errors.NewCsresError(errors.AllocatingCsres, code)
			}
			protocol.CsresAllocated.WithLabelValues(code).Inc()
		}
	}
	rendered := placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
		code, indices, _ := parseExpr(m)
		vals := make([]string, 0, len(indices))
		for _, idx := range indices {
			vals = append(vals, values[code][idx])
		}
		return strings.Join(vals, " ")
	})
	return rendered, nil
}

func (r *Renderer) lock(code string) error {
	lock := NewFileLock(r.lockDir, code)
	if err := lock.Lock(); err != nil {
		return err
	}
	r.locks = append(r.locks, lock)
	return nil
}

// Release drops every per-code lock taken during Render.
func (r *Renderer) Release() {
	for _, lock := range r.locks {
		lock.Unlock()
	}
	r.locks = nil
}

// parseExpr decodes one placeholder into its code and index list.
//
//	@@{lico_X<i>}        single index
//	@@{lico_X<a>_<b>}    range a..b, a<=b
//	@@{lico_X_i1_i2_...} discrete indices
func parseExpr(m string) (string, []int64, error) {
	groups := exprRe.FindStringSubmatch(m)
	if groups == nil {
		return "", nil, errors.NewCsresError(errors.AllocatingCsres, m)
	}
	code := groups[1]
	rest := groups[2]
	if strings.HasPrefix(rest, "_") {
		var indices []int64
		for _, p := range strings.Split(rest[1:], "_") {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return "", nil, errors.NewCsresError(errors.AllocatingCsres, m)
			}
			indices = append(indices, n)
		}
		return code, indices, nil
	}
	parts := strings.Split(rest, "_")
	switch len(parts) {
	case 1:
		n, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return "", nil, errors.NewCsresError(errors.AllocatingCsres, m)
		}
		return code, []int64{n}, nil
	case 2:
		a, err1 := strconv.ParseInt(parts[0], 10, 64)
		b, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || a > b {
			return "", nil, errors.NewCsresError(errors.AllocatingCsres, m)
		}
		indices := make([]int64, 0, b-a+1)
		for n := a; n <= b; n++ {
			indices = append(indices, n)
		}
		return code, indices, nil
	}
	return "", nil, errors.NewCsresError(errors.AllocatingCsres, m)
}
