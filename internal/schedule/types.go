package schedule

import (
	"strings"
	"time"

	"schedbot/pkg/dates"
)

// Key identifies one group's schedule for one day.
type Key struct {
	Group string
	Date  string // YYYY-MM-DD
}

// NewKey normalises the group and formats date in its own location.
func NewKey(group string, date time.Time) Key {
	return Key{Group: strings.TrimSpace(group), Date: dates.Key(date)}
}

func (k Key) String() string { return k.Group + "_" + k.Date }

// Entry is one lesson as displayed to users.
type Entry struct {
	Time    string `json:"time"`
	Subject string `json:"subject"`
	Room    string `json:"room"`
	Teacher string `json:"teacher"`
}
