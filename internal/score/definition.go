// internal/score/definition.go
package score

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/types"
)

// Level describes one component of a score, most significant first.
type Level struct {
	Name string
	Hard bool
	Kind Kind
}

// Definition is the immutable level layout shared by every Score of a network.
// Definitions are compared by pointer; build one per run and share it.
type Definition struct {
	name       string
	levels     []Level
	hasDecimal bool
}

// Simple returns a single-level definition with no hard/soft distinction.
func Simple(kind Kind) *Definition {
	return mustDefinition("simple", Level{Name: "", Hard: false, Kind: kind})
}

// HardSoft returns the common two-level definition.
func HardSoft(kind Kind) *Definition {
	return mustDefinition("hardSoft",
		Level{Name: "hard", Hard: true, Kind: kind},
		Level{Name: "soft", Kind: kind},
	)
}

// HardMediumSoft returns a three-level definition; medium counts as soft for feasibility.
func HardMediumSoft(kind Kind) *Definition {
	return mustDefinition("hardMediumSoft",
		Level{Name: "hard", Hard: true, Kind: kind},
		Level{Name: "medium", Kind: kind},
		Level{Name: "soft", Kind: kind},
	)
}

// Bendable returns a definition with a configurable number of hard and soft levels,
// named hard0..hardN and soft0..softM.
func Bendable(hardLevels, softLevels int, kind Kind) (*Definition, error) {
	if hardLevels < 0 || softLevels < 0 || hardLevels+softLevels == 0 {
		return nil, fmt.Errorf("%w: bendable needs at least one level, got %d hard %d soft",
			types.ErrInvalidScore, hardLevels, softLevels)
	}
	levels := make([]Level, 0, hardLevels+softLevels)
	for i := 0; i < hardLevels; i++ {
		levels = append(levels, Level{Name: fmt.Sprintf("hard%d", i), Hard: true, Kind: kind})
	}
	for i := 0; i < softLevels; i++ {
		levels = append(levels, Level{Name: fmt.Sprintf("soft%d", i), Kind: kind})
	}
	return newDefinition("bendable", levels...)
}

// Composite returns a definition with per-level kinds.
func Composite(levels ...Level) (*Definition, error) {
	return newDefinition("composite", levels...)
}

func mustDefinition(name string, levels ...Level) *Definition {
	d, err := newDefinition(name, levels...)
	if err != nil {
		panic(err)
	}
	return d
}

func newDefinition(name string, levels ...Level) (*Definition, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: definition has no levels", types.ErrInvalidScore)
	}
	if len(levels) > types.MaxScoreLevels {
		return nil, fmt.Errorf("%w: %d levels exceeds maximum %d",
			types.ErrInvalidScore, len(levels), types.MaxScoreLevels)
	}
	seen := make(map[string]bool, len(levels))
	softSeen := false
	d := &Definition{name: name, levels: append([]Level(nil), levels...)}
	for _, l := range levels {
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: duplicate level name %q", types.ErrInvalidScore, l.Name)
		}
		seen[l.Name] = true
		if l.Hard && softSeen {
			return nil, fmt.Errorf("%w: hard level %q after a soft level", types.ErrInvalidScore, l.Name)
		}
		if !l.Hard {
			softSeen = true
		}
		if l.Kind < KindInt || l.Kind > KindDecimal {
			return nil, fmt.Errorf("%w: level %q has unknown kind", types.ErrInvalidScore, l.Name)
		}
		if l.Kind == KindDecimal {
			d.hasDecimal = true
		}
	}
	return d, nil
}

// Name identifies the definition family (hardSoft, bendable, ...).
func (d *Definition) Name() string { return d.name }

// LevelCount returns the number of levels.
func (d *Definition) LevelCount() int { return len(d.levels) }

// Levels returns a copy of the level layout.
func (d *Definition) Levels() []Level { return append([]Level(nil), d.levels...) }

// Level returns the i-th level.
func (d *Definition) Level(i int) Level { return d.levels[i] }

// HasDecimal reports whether any level is arbitrary precision.
func (d *Definition) HasDecimal() bool { return d.hasDecimal }

// Zero returns the all-zero score.
func (d *Definition) Zero() Score {
	s := Score{def: d, n: make([]int64, len(d.levels))}
	if d.hasDecimal {
		s.d = make([]decimal.Decimal, len(d.levels))
	}
	return s
}

// Of builds a score from integral level values, most significant first.
func (d *Definition) Of(values ...int64) (Score, error) {
	if len(values) != len(d.levels) {
		return Score{}, fmt.Errorf("%w: got %d values for %d levels",
			types.ErrInvalidScore, len(values), len(d.levels))
	}
	s := d.Zero()
	for i, v := range values {
		l := d.levels[i]
		if l.Kind == KindDecimal {
			s.d[i] = decimal.NewFromInt(v)
			continue
		}
		if !fits(l.Kind, v) {
			return Score{}, fmt.Errorf("%w: level %q value %d", types.ErrScoreOverflow, l.Name, v)
		}
		s.n[i] = v
	}
	return s, nil
}

// OfDecimal builds a score from decimal level values. Fixed-width levels must
// receive integral values in range.
func (d *Definition) OfDecimal(values ...decimal.Decimal) (Score, error) {
	if len(values) != len(d.levels) {
		return Score{}, fmt.Errorf("%w: got %d values for %d levels",
			types.ErrInvalidScore, len(values), len(d.levels))
	}
	s := d.Zero()
	for i, v := range values {
		l := d.levels[i]
		if l.Kind == KindDecimal {
			s.d[i] = v
			continue
		}
		if !v.IsInteger() {
			return Score{}, fmt.Errorf("%w: level %q is %s, value %s is not integral",
				types.ErrInvalidScore, l.Name, l.Kind, v)
		}
		n, ok := decimalToInt64(v)
		if !ok || !fits(l.Kind, n) {
			return Score{}, fmt.Errorf("%w: level %q value %s", types.ErrScoreOverflow, l.Name, v)
		}
		s.n[i] = n
	}
	return s, nil
}

// OneHard returns a score with 1 in the first hard level, as used for constraint weights.
func (d *Definition) OneHard() Score { return d.unit(true) }

// OneSoft returns a score with 1 in the last soft level.
func (d *Definition) OneSoft() Score { return d.unit(false) }

func (d *Definition) unit(hard bool) Score {
	s := d.Zero()
	idx := -1
	if hard {
		for i, l := range d.levels {
			if l.Hard {
				idx = i
				break
			}
		}
	} else {
		for i := len(d.levels) - 1; i >= 0; i-- {
			if !d.levels[i].Hard {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		idx = len(d.levels) - 1
	}
	if d.levels[idx].Kind == KindDecimal {
		s.d[idx] = decimal.NewFromInt(1)
	} else {
		s.n[idx] = 1
	}
	return s
}
