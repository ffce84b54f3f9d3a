package reminders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Offset is how long before the appointment a reminder fires.
type Offset struct {
	Days    int
	Hours   int
	Minutes int
}

func (o Offset) Duration() time.Duration {
	return time.Duration(o.Days)*24*time.Hour + time.Duration(o.Hours)*time.Hour + time.Duration(o.Minutes)*time.Minute
}

func (o Offset) String() string {
	var b strings.Builder
	if o.Days > 0 {
		fmt.Fprintf(&b, "%dd", o.Days)
	}
	if o.Hours > 0 {
		fmt.Fprintf(&b, "%dh", o.Hours)
	}
	if o.Minutes > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%dm", o.Minutes)
	}
	return b.String()
}

// DefaultOffsets fires one day and one hour before the session.
var DefaultOffsets = []Offset{{Days: 1}, {Hours: 1}}

// ParseOffsets reads a comma separated list such as "1d,1h" or "1d12h,30m".
// Bare integers are minutes. Invalid items are dropped and reported in the
// returned error; when nothing valid remains DefaultOffsets is returned.
func ParseOffsets(raw string) ([]Offset, error) {
	var out []Offset
	var errs []error
	seen := map[time.Duration]bool{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		o, err := parseOffset(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[o.Duration()] {
			continue
		}
		seen[o.Duration()] = true
		out = append(out, o)
	}
	if len(out) == 0 {
		out = append([]Offset(nil), DefaultOffsets...)
	}
	return out, errors.Join(errs...)
}

func parseOffset(item string) (Offset, error) {
	if n, err := strconv.Atoi(item); err == nil {
		if n <= 0 {
			return Offset{}, fmt.Errorf("invalid reminder offset %q", item)
		}
		return Offset{Minutes: n}, nil
	}

	var o Offset
	rest := item
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return Offset{}, fmt.Errorf("invalid reminder offset %q", item)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Offset{}, fmt.Errorf("invalid reminder offset %q", item)
		}
		switch rest[i] {
		case 'd':
			o.Days += n
		case 'h':
			o.Hours += n
		case 'm':
			o.Minutes += n
		default:
			return Offset{}, fmt.Errorf("invalid reminder offset %q", item)
		}
		rest = rest[i+1:]
	}
	if o.Duration() <= 0 {
		return Offset{}, fmt.Errorf("invalid reminder offset %q", item)
	}
	return o, nil
}
