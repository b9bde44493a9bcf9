package model

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPiece = regexp.MustCompile(`(?i)([0-9]+)([wdhms])`)

var durationUnits = map[byte]time.Duration{
	'w': 7 * 24 * time.Hour,
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseDuration parses compact duration tokens such as "1d12h" or "90m". Every
// <number><unit> piece in the token is summed; text around pieces is ignored.
// Zero or overflowing numbers are skipped and the total saturates at the
// maximum duration. ok is false when no valid piece exists.
func ParseDuration(token string) (time.Duration, bool) {
	var total time.Duration
	found := false

	for _, m := range durationPiece.FindAllStringSubmatch(token, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		unit := durationUnits[strings.ToLower(m[2])[0]]

		found = true
		if n > int64(math.MaxInt64/unit) {
			total = math.MaxInt64
			continue
		}
		total = saturatingAdd(total, time.Duration(n)*unit)
	}

	if !found {
		return 0, false
	}
	return total, true
}

// SplitDuration consumes args[0] when it parses as a duration. Otherwise args
// is returned untouched as rest and the caller treats it as reason text.
func SplitDuration(args []string) (time.Duration, bool, []string) {
	if len(args) == 0 {
		return 0, false, args
	}
	d, ok := ParseDuration(args[0])
	if !ok {
		return 0, false, args
	}
	return d, true, args[1:]
}

func saturatingAdd(a, b time.Duration) time.Duration {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

var humanUnits = []struct {
	d    time.Duration
	name string
}{
	{7 * 24 * time.Hour, "week"},
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
	{time.Second, "second"},
}

// HumanizeDuration renders d as "1 week 2 days" at second precision
func HumanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	var parts []string
	for _, u := range humanUnits {
		n := d / u.d
		if n == 0 {
			continue
		}
		d -= n * u.d

		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, strconv.FormatInt(int64(n), 10)+" "+name)
	}
	return strings.Join(parts, " ")
}
