package scheduler

import "time"

func parseLocalTime(layout, s string) (int64, error) {
	t, err := time.ParseInLocation(layout, s, time.Local)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
