package risk

import (
	"fmt"
	"strings"
)

// Level is a risk classification. The graded levels form a total order from
// LevelLow to LevelExtreme; LevelRugged and LevelPending are terminal states
// outside the ladder.
type Level string

// Risk levels
const (
	LevelLow      Level = "LOW RISK"
	LevelGuarded  Level = "GUARDED RISK"
	LevelElevated Level = "ELEVATED RISK"
	LevelModerate Level = "MODERATE RISK"
	LevelHigh     Level = "HIGH RISK"
	LevelVeryHigh Level = "VERY HIGH RISK"
	LevelExtreme  Level = "EXTREME RISK"
	LevelRugged   Level = "RUGGED"
	LevelPending  Level = "PENDING"
)

// Levels lists every graded level from best to worst.
var Levels = []Level{
	LevelLow,
	LevelGuarded,
	LevelElevated,
	LevelModerate,
	LevelHigh,
	LevelVeryHigh,
	LevelExtreme,
}

var filterLevels = []Level{
	LevelLow, LevelGuarded, LevelElevated, LevelModerate,
	LevelHigh, LevelVeryHigh, LevelExtreme, LevelRugged, LevelPending,
}

// Severity orders levels for comparison. PENDING has severity 0 and RUGGED
// sits above EXTREME RISK.
func (l Level) Severity() int {
	switch l {
	case LevelLow:
		return 1
	case LevelGuarded:
		return 2
	case LevelElevated:
		return 3
	case LevelModerate:
		return 4
	case LevelHigh:
		return 5
	case LevelVeryHigh:
		return 6
	case LevelExtreme:
		return 7
	case LevelRugged:
		return 8
	default:
		return 0
	}
}

// IsTerminal reports whether the level sits outside the graded ladder.
func (l Level) IsTerminal() bool {
	return l == LevelRugged || l == LevelPending
}

// Color returns a color name understood by tview's dynamic color tags.
func (l Level) Color() string {
	switch l {
	case LevelLow:
		return "green"
	case LevelGuarded:
		return "lime"
	case LevelElevated:
		return "yellow"
	case LevelModerate:
		return "gold"
	case LevelHigh:
		return "orange"
	case LevelVeryHigh:
		return "orangered"
	case LevelExtreme:
		return "red"
	case LevelRugged:
		return "darkred"
	default:
		return "gray"
	}
}

// FilterKey returns the list-view filter key of the level, e.g. "very_high".
func (l Level) FilterKey() string {
	k := strings.TrimSuffix(string(l), " RISK")
	return strings.ToLower(strings.ReplaceAll(k, " ", "_"))
}

// ParseFilter maps a list-view filter key to a level. "all" and the empty
// string return an empty Level, meaning no filtering.
func ParseFilter(key string) (Level, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == "all" {
		return "", nil
	}
	for _, l := range filterLevels {
		if l.FilterKey() == key {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown risk filter %q", key)
}
