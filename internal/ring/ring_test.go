package ring

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRing(t *testing.T, order []string, current string) *Ring {
	t.Helper()
	r, err := FromOrder(order, current)
	require.NoError(t, err)
	return r
}

func TestFromOrder(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "")

	assert.Equal(t, "alice", r.Current())
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Order())
	require.NoError(t, r.Validate([]string{"alice", "bob", "carol"}))
}

func TestFromOrder_UnknownCurrent(t *testing.T) {
	_, err := FromOrder([]string{"alice"}, "zed")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestAdvance(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "alice")

	next, err := r.Advance()
	require.NoError(t, err)
	assert.Equal(t, "bob", next)

	_, _ = r.Advance()
	next, _ = r.Advance()
	assert.Equal(t, "alice", next, "advance wraps around")
}

func TestAdvance_SingleMemberStays(t *testing.T) {
	r := mustRing(t, []string{"alice"}, "")

	next, err := r.Advance()
	require.NoError(t, err)
	assert.Equal(t, "alice", next)
	assert.Equal(t, "alice", r.Current())
}

func TestAdvance_Empty(t *testing.T) {
	r := New(nil, "")
	_, err := r.Advance()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSpliceIn_BeforeCurrentPicker(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "bob")

	require.NoError(t, r.SpliceIn("dave"))

	prev, _ := r.Prev("bob")
	assert.Equal(t, "dave", prev)
	prev, _ = r.Prev("dave")
	assert.Equal(t, "alice", prev)
	assert.Equal(t, "bob", r.Current(), "splice-in never moves the pointer")
	assert.Equal(t, []string{"bob", "carol", "alice", "dave"}, r.Order())
}

func TestSpliceIn_EmptyRingBecomesSelfLoop(t *testing.T) {
	r := New(nil, "")

	require.NoError(t, r.SpliceIn("alice"))

	assert.Equal(t, "alice", r.Current())
	next, _ := r.Next("alice")
	assert.Equal(t, "alice", next)
}

func TestSpliceIn_SingleMember(t *testing.T) {
	r := mustRing(t, []string{"alice"}, "")

	require.NoError(t, r.SpliceIn("bob"))

	assert.Equal(t, []string{"alice", "bob"}, r.Order())
	require.NoError(t, r.Validate([]string{"alice", "bob"}))
}

func TestSpliceIn_Duplicate(t *testing.T) {
	r := mustRing(t, []string{"alice"}, "")
	assert.ErrorIs(t, r.SpliceIn("alice"), ErrDuplicate)
	assert.ErrorIs(t, r.SpliceIn(""), ErrBlankNode)
}

func TestSpliceOut(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "alice")

	require.NoError(t, r.SpliceOut("bob"))

	assert.Equal(t, []string{"alice", "carol"}, r.Order())
	assert.Equal(t, "alice", r.Current())
}

func TestSpliceOut_CurrentPickerMovesToSuccessor(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "bob")

	require.NoError(t, r.SpliceOut("bob"))

	assert.Equal(t, "carol", r.Current())
	assert.Equal(t, []string{"carol", "alice"}, r.Order())
	require.NoError(t, r.Validate([]string{"alice", "carol"}))
}

func TestSpliceOut_LastNode(t *testing.T) {
	r := mustRing(t, []string{"alice"}, "")

	require.NoError(t, r.SpliceOut("alice"))

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Current())
	require.NoError(t, r.Validate(nil))
}

func TestSpliceOut_Unknown(t *testing.T) {
	r := mustRing(t, []string{"alice"}, "")
	assert.ErrorIs(t, r.SpliceOut("bob"), ErrUnknown)
}

func TestReplace_KeepsCurrentWhenPresent(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob", "carol"}, "bob")

	require.NoError(t, r.Replace([]string{"carol", "bob", "alice"}))

	assert.Equal(t, "bob", r.Current())
	assert.Equal(t, []string{"bob", "alice", "carol"}, r.Order())
}

func TestReplace_FallsBackToFirst(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob"}, "bob")

	require.NoError(t, r.Replace([]string{"carol", "alice"}))

	assert.Equal(t, "carol", r.Current())
}

func TestReplace_RejectsDuplicatesWithoutChanging(t *testing.T) {
	r := mustRing(t, []string{"alice", "bob"}, "alice")
	before := r.Order()

	err := r.Replace([]string{"alice", "alice"})

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, before, r.Order())
}

func TestValidate_DetectsSubCycle(t *testing.T) {
	r := New(map[string]string{"a": "b", "b": "a", "c": "d", "d": "c"}, "a")
	assert.Error(t, r.Validate([]string{"a", "b", "c", "d"}))
}

func TestValidate_DetectsOmittedMember(t *testing.T) {
	r := mustRing(t, []string{"a", "b"}, "")
	assert.Error(t, r.Validate([]string{"a", "b", "c"}))
}

func TestValidate_DetectsDanglingCurrent(t *testing.T) {
	r := New(map[string]string{"a": "b", "b": "a"}, "z")
	assert.Error(t, r.Validate([]string{"a", "b"}))
}

func TestDiff(t *testing.T) {
	before := mustRing(t, []string{"a", "b", "c"}, "a")
	after := before.Clone()
	require.NoError(t, after.SpliceOut("b"))

	c := Diff(before, after)

	assert.Equal(t, []string{"a", "b"}, c.Detach)
	assert.Equal(t, map[string]string{"a": "c"}, c.Attach)
	assert.False(t, c.CurrentChanged)

	from, to := c.AttachEdges()
	assert.Equal(t, []string{"a"}, from)
	assert.Equal(t, []string{"c"}, to)
}

func TestDiff_NoChange(t *testing.T) {
	r := mustRing(t, []string{"a", "b"}, "a")
	assert.True(t, Diff(r, r.Clone()).Empty())
}

// Every sequence of splices and reorders keeps one cycle over exactly the
// active nodes.
func TestRingIntegrity_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for trial := range 50 {
		r := New(nil, "")
		active := []string{}
		departed := []string{}
		nextID := 0

		for range 200 {
			switch op := rng.IntN(5); {
			case op <= 1 || len(active) == 0:
				var id string
				if len(departed) > 0 && rng.IntN(2) == 0 {
					id = departed[len(departed)-1]
					departed = departed[:len(departed)-1]
				} else {
					id = fmt.Sprintf("m%d", nextID)
					nextID++
				}
				current := r.Current()
				require.NoError(t, r.SpliceIn(id))
				if current != "" {
					succ, _ := r.Next(id)
					assert.Equal(t, current, succ, "newcomer queues right before the current picker")
				}
				active = append(active, id)
			case op == 2:
				i := rng.IntN(len(active))
				id := active[i]
				require.NoError(t, r.SpliceOut(id))
				active = slices.Delete(active, i, i+1)
				departed = append(departed, id)
			case op == 3:
				order := slices.Clone(active)
				rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
				require.NoError(t, r.Replace(order))
			default:
				_, err := r.Advance()
				require.NoError(t, err)
			}

			require.NoError(t, r.Validate(active), "trial %d", trial)
			assert.Len(t, r.Order(), len(active))
		}
	}
}
