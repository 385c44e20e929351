package verify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/collect"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type room struct {
	name     string
	capacity int64
}

type lesson struct {
	subject string
	room    *room
	size    int64
}

var def = score.HardSoft(score.KindLong)

func lessonOf(f network.Facts) *lesson { return f.A().(*lesson) }

func provider() network.ConstraintProvider {
	return network.ConstraintProviderFunc(func(f *network.Factory) {
		lessons := network.ForEach[*lesson](f)
		assigned := lessons.Filter(func(f network.Facts) bool { return lessonOf(f).room != nil })
		assigned.GroupByKey(func(f network.Facts) any { return lessonOf(f).room },
			collect.Sum(func(f network.Facts) int64 { return lessonOf(f).size })).
			Filter(func(f network.Facts) bool { return f.B().(int64) > f.A().(*room).capacity }).
			Penalize(def.OneHard()).
			WithMatchWeight(func(f network.Facts) int64 { return f.B().(int64) - f.A().(*room).capacity }).
			As("room capacity")
		lessons.Filter(func(f network.Facts) bool { return lessonOf(f).room == nil }).
			Penalize(def.OneSoft()).
			As("unassigned lesson")
		lessons.Reward(def.OneSoft()).As("scheduled")
		lessons.Impact(def.OneSoft()).
			WithMatchWeight(func(f network.Facts) int64 { return 10 - lessonOf(f).size }).
			As("small lessons")
		network.ForEach[*room](f).Penalize(def.Zero()).As("disabled")
	})
}

func TestVerifier_PenalizesBy(t *testing.T) {
	v := New(def, provider())
	small := &room{"small", 10}
	a := v.ThatNamed("room capacity").Given(small,
		&lesson{"math", small, 6},
		&lesson{"art", small, 7})

	require.NoError(t, a.PenalizesBy(3))
	require.NoError(t, a.Penalizes(1))
	require.NoError(t, a.PenalizesAny())
	assert.ErrorIs(t, a.PenalizesBy(4), types.ErrVerificationFailed)
	assert.ErrorIs(t, a.RewardsBy(3), types.ErrVerificationFailed)
	assert.ErrorIs(t, a.HasNoImpact(), types.ErrVerificationFailed)
	require.NoError(t, a.IndictsWith(small))
}

func TestVerifier_NoImpact(t *testing.T) {
	v := New(def, provider())
	big := &room{"big", 100}
	a := v.ThatNamed("room capacity").Given(big, &lesson{"math", big, 6})
	require.NoError(t, a.HasNoImpact())
	require.NoError(t, a.PenalizesBy(0))
	assert.ErrorIs(t, a.PenalizesAny(), types.ErrVerificationFailed)
}

func TestVerifier_Rewards(t *testing.T) {
	v := New(def, provider())
	a := v.ThatNamed("scheduled").Given(&lesson{subject: "a"}, &lesson{subject: "b"})
	require.NoError(t, a.Rewards(2))
	require.NoError(t, a.RewardsBy(2))
	assert.ErrorIs(t, a.Penalizes(2), types.ErrVerificationFailed)
}

func TestVerifier_MixedImpact(t *testing.T) {
	v := New(def, provider())
	a := v.ThatNamed("small lessons").Given(
		&lesson{subject: "a", size: 4},
		&lesson{subject: "b", size: 13},
		&lesson{subject: "c", size: 15})

	total, err := a.MatchWeightTotal()
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-2)), "MatchWeightTotal() = %s, want -2", total)
	require.NoError(t, a.PenalizesBy(2))
	require.NoError(t, a.Penalizes(2))
	require.NoError(t, a.Rewards(1))
}

func TestVerifier_Justification(t *testing.T) {
	v := New(def, provider())
	l := &lesson{subject: "math"}
	a := v.ThatNamed("unassigned lesson").Given(l)
	require.NoError(t, a.Penalizes(1))
	require.NoError(t, a.JustifiesWith(network.DefaultJustification{
		Facts: []any{l},
		Score: mustScore(t, 0, -1),
	}))
	assert.ErrorIs(t, a.JustifiesWith("something else"), types.ErrVerificationFailed)
}

func TestVerifier_Scores(t *testing.T) {
	v := New(def, provider())
	l := &lesson{subject: "math", size: 10}
	// unassigned -1soft, scheduled +1soft, small lessons 0
	require.NoError(t, v.All().Given(l).Scores(def.Zero()))
	assert.ErrorIs(t, v.All().Given(l).Scores(mustScore(t, 0, 1)), types.ErrVerificationFailed)
}

func TestVerifier_Errors(t *testing.T) {
	v := New(def, provider())
	_, err := v.ThatNamed("missing").Given().MatchWeightTotal()
	assert.ErrorIs(t, err, types.ErrConstraintNotFound)

	assert.ErrorIs(t, v.ThatNamed("disabled").Given().HasNoImpact(), types.ErrConstraintNotFound)

	l := &lesson{subject: "math"}
	assert.ErrorIs(t, v.ThatNamed("scheduled").Given(l, l).Rewards(1), types.ErrFactAlreadyInserted)
}

func mustScore(t *testing.T, v ...int64) score.Score {
	t.Helper()
	s, err := def.Of(v...)
	require.NoError(t, err)
	return s
}
