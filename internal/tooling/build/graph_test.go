package build

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddModuleDeduplicates(t *testing.T) {
	g := NewGraph()
	a := g.AddModule("a.vela")
	again := g.AddModule("a.vela")
	assert.Equal(t, a, again)
	assert.Equal(t, 1, g.Len())
}

func TestAddDependencyIgnoresDuplicates(t *testing.T) {
	g := NewGraph()
	a := g.AddModule("a.vela")
	b := g.AddModule("b.vela")
	g.AddDependency(b, a)
	g.AddDependency(b, a)
	assert.Len(t, g.Module(b).Dependencies, 1)
}

// TestLevelSchedule covers the scheduling scenario: edges b->a, c->a,
// d->b, d->c yield levels [{a}, {b, c}, {d}].
func TestLevelSchedule(t *testing.T) {
	g := NewGraph()
	a := g.AddModule("a.vela")
	b := g.AddModule("b.vela")
	c := g.AddModule("c.vela")
	d := g.AddModule("d.vela")

	g.AddDependency(b, a)
	g.AddDependency(c, a)
	g.AddDependency(d, b)
	g.AddDependency(d, c)

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 3)

	assert.Equal(t, []ModuleID{a}, levels[0])
	assert.ElementsMatch(t, []ModuleID{b, c}, levels[1])
	assert.Equal(t, []ModuleID{d}, levels[2])
}

// TestLevelScheduleCorrectness checks the schedule invariants: every
// dependency lands in an earlier level, the union covers all modules, and
// no module appears twice.
func TestLevelScheduleCorrectness(t *testing.T) {
	g := NewGraph()
	ids := make([]ModuleID, 8)
	for i := range ids {
		ids[i] = g.AddModule(string(rune('a'+i)) + ".vela")
	}
	g.AddDependency(ids[1], ids[0])
	g.AddDependency(ids[2], ids[0])
	g.AddDependency(ids[3], ids[1])
	g.AddDependency(ids[3], ids[2])
	g.AddDependency(ids[4], ids[3])
	g.AddDependency(ids[5], ids[0])
	g.AddDependency(ids[6], ids[5])
	g.AddDependency(ids[7], ids[6])

	levels, err := g.Levels()
	require.NoError(t, err)

	levelOf := make(map[ModuleID]int)
	seen := 0
	for levelIdx, level := range levels {
		for _, id := range level {
			_, dup := levelOf[id]
			require.False(t, dup, "module %d scheduled twice", id)
			levelOf[id] = levelIdx
			seen++
		}
	}
	assert.Equal(t, g.Len(), seen, "every module must be scheduled")

	for _, m := range g.Modules() {
		for _, dep := range m.Dependencies {
			assert.Less(t, levelOf[dep], levelOf[m.ID],
				"dependency %d must precede %d", dep, m.ID)
		}
	}
}

// TestCycleDetection covers the cycle scenario: a -> b, b -> a fails with a
// structured error naming one cycle.
func TestCycleDetection(t *testing.T) {
	g := NewGraph()
	a := g.AddModule("a.vela")
	b := g.AddModule("b.vela")
	g.AddDependency(a, b)
	g.AddDependency(b, a)

	_, err := g.Levels()
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.GreaterOrEqual(t, len(cycleErr.Cycle), 3, "cycle must name its members")
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1],
		"cycle path must close on itself")
}

func TestSelfCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddModule("a.vela")
	g.AddDependency(a, a)

	_, err := g.Levels()
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
}

func TestEmptyGraphLevels(t *testing.T) {
	levels, err := NewGraph().Levels()
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestIndependentModulesShareOneLevel(t *testing.T) {
	g := NewGraph()
	g.AddModule("a.vela")
	g.AddModule("b.vela")
	g.AddModule("c.vela")

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 3)
}

func TestModuleStateString(t *testing.T) {
	assert.Equal(t, "unseen", StateUnseen.String())
	assert.Equal(t, "compiled", StateCompiled.String())
	assert.Equal(t, "failed", StateFailed.String())
}
