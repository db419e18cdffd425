// services/window.go
package services

import "time"

const windowKeyLayout = "2006-01-02"

// CalendarWindow derives day-sized claim windows in the player's zone.
type CalendarWindow struct {
	Location *time.Location
}

func NewCalendarWindow(loc *time.Location) CalendarWindow {
	if loc == nil {
		loc = time.Local
	}
	return CalendarWindow{Location: loc}
}

// Key identifies the window containing t.
func (w CalendarWindow) Key(t time.Time) string {
	return t.In(w.Location).Format(windowKeyLayout)
}

// NextStart is local midnight after t.
func (w CalendarWindow) NextStart(t time.Time) time.Time {
	local := t.In(w.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, w.Location)
}

// Precedes reports whether window prev is immediately before window key.
func (w CalendarWindow) Precedes(prev, key string) bool {
	day, err := time.ParseInLocation(windowKeyLayout, key, w.Location)
	if err != nil {
		return false
	}
	return day.AddDate(0, 0, -1).Format(windowKeyLayout) == prev
}
