package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func UUID() string {
	return uuid.New().String()
}

func Time(t time.Time) string {
	t.UTC()
	return t.Format("2006/01/02 15:04:05")
}

// Retry 自动重试
func Retry(retry int, f func() error) error {
	var err error
	err = f()
	if err == nil {
		return nil
	}
	for re := 0; re < retry; re++ {
		err = f()
		if err == nil {
			break
		}
	}
	return err
}

func ParseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// Truncate cuts s to at most n bytes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
