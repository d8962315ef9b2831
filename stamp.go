package vstore

import (
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02 15:04:05"

// NewID returns a random identifier, unique for all practical purposes.
func NewID() string {
	return uuid.NewString()
}

// FormatDate renders epoch milliseconds as local "YYYY-MM-DD HH:MM:SS".
func FormatDate(ms int64) string {
	return time.UnixMilli(ms).Format(dateLayout)
}

// stampCreate returns data with the creation fields filled in. A caller
// supplied id is kept; the creation date and timestamp always come from now.
func stampCreate(data Record, now time.Time, newID func() string, formatDate func(int64) string) Record {
	ms := now.UnixMilli()
	rec := make(Record, len(data)+3)
	for k, v := range data {
		rec[k] = v
	}
	if id, ok := data[FieldID]; !ok || id == nil {
		rec[FieldID] = newID()
	}
	rec[FieldCreateDate] = formatDate(ms)
	rec[FieldCreateTimestamp] = ms
	return rec
}
