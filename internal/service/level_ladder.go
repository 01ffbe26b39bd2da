package service

// LevelLadder is the ordered list of student levels with a successor
// relation. Level names recur every school year; ordering is what gives a
// promotion its direction.
type LevelLadder struct {
	levels []string
	index  map[string]int
}

// DefaultLevels is the ladder used when no custom one is configured.
var DefaultLevels = []string{"PS", "MS", "GS", "CP", "CE1", "CE2", "CM1", "CM2"}

// NewLevelLadder builds a ladder from the ordered level names.
func NewLevelLadder(levels []string) LevelLadder {
	index := make(map[string]int, len(levels))
	ordered := make([]string, 0, len(levels))
	for _, level := range levels {
		if _, seen := index[level]; seen {
			continue
		}
		index[level] = len(ordered)
		ordered = append(ordered, level)
	}

	return LevelLadder{levels: ordered, index: index}
}

// DefaultLevelLadder returns the ladder over DefaultLevels.
func DefaultLevelLadder() LevelLadder {
	return NewLevelLadder(DefaultLevels)
}

// Contains reports whether the level is a rung on the ladder.
func (l LevelLadder) Contains(level string) bool {
	_, ok := l.index[level]
	return ok
}

// Successor returns the level following the given one. The second return is
// false when the level is unknown or already the last rung.
func (l LevelLadder) Successor(level string) (string, bool) {
	position, ok := l.index[level]
	if !ok || position+1 >= len(l.levels) {
		return "", false
	}
	return l.levels[position+1], true
}

// Levels returns the ordered rungs.
func (l LevelLadder) Levels() []string {
	return append([]string(nil), l.levels...)
}
