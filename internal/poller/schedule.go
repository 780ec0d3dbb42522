package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule polls every three seconds.
const DefaultSchedule = "@every 3s"

var (
	reHHMMSS = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})(?::(\d{2}))?\s*$`)
	parser   = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule accepts:
//   - cron expressions and descriptors: "*/5 * * * * *", "@every 3s"
//   - Go durations: "3s", "1m30s"
//   - MM:SS or HH:MM:SS: "00:05" (5 seconds), "01:00:00"
//
// "cron:" forces cron parsing, "interval:" or "every:" forces an interval.
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSchedule
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	default:
		return parseInterval(s)
	}
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron schedule required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return sched, nil
}

func parseInterval(v string) (cron.Schedule, error) {
	if v == "" {
		return nil, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMMSS.FindStringSubmatch(v); m != nil {
		a, b, c := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if b > 59 || c > 59 {
			return nil, fmt.Errorf("invalid clock interval %q", v)
		}
		if m[3] == "" {
			d = time.Duration(a)*time.Minute + time.Duration(b)*time.Second
		} else {
			d = time.Duration(a)*time.Hour + time.Duration(b)*time.Minute + time.Duration(c)*time.Second
		}
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid schedule %q (use cron like '@every 3s', MM:SS like '00:05', or duration like '3s')", v)
		}
	}
	if d < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return cron.Every(d), nil
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
