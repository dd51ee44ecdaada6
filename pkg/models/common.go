package models

import "time"

// timeLayout is the wire timestamp format used across every response DTO,
// matching encoding/json's default time.Time layout so handwritten
// formatting and struct-tagged time.Time fields agree.
const timeLayout = time.RFC3339Nano

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}
