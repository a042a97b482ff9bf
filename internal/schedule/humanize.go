package schedule

import "strconv"

// HumanizeOffset renders a reminder lead time in its largest whole
// unit: days at 1440 minutes and above, hours at 60 and above,
// minutes otherwise. Singular exactly at one unit.
func HumanizeOffset(minutes int) string {
	switch {
	case minutes >= 1440:
		return plural(minutes/1440, "day")
	case minutes >= 60:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
