package service

import "time"

const timeLayout = "2006-01-02 15:04:05"

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}
