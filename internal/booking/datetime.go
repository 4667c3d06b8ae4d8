package booking

import (
	"strings"
	"time"

	"salonbot/internal/model"
)

// inputLayouts are tried in order; the first match wins.
var inputLayouts = []string{
	"2.1.2006 15:04",
	"2.1.06 15:04",
	"2.1.2006 15:04:05",
	"2.1.06 15:04:05",
}

// NormalizeDateTime turns an extracted date and time into the canonical
// "dd.mm.yy hh:mm:ss" form.
func NormalizeDateTime(date, clock string) (string, error) {
	value := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	for _, layout := range inputLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.Format(model.DateTimeLayout), nil
		}
	}
	return "", model.ErrUnparseableDateTime
}
