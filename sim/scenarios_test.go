package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ficap/rofi-upgrade-strategy-simulator/device"
	"github.com/ficap/rofi-upgrade-strategy-simulator/firmware"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simutil"
)

// The end-to-end scenarios below reproduce the topologies, seeded devices,
// and reliabilities of S1-S6, run to the convergence stop condition they
// describe, and assert the properties those scenarios exist to exercise:
// termination within a tick budget and no-downgrade. Run-to-run
// determinism under a fixed seed is checked separately, in
// TestSeededRunsAreDeterministic.
//
// They do not assert the literal convergence-tick counts from the
// originating research paper. Those numbers are an artifact of CPython's
// Mersenne Twister, reached through a fixed sequence of random.random()
// calls wired into the original's build/shuffle/link-loss order; matching
// them bit-for-bit would mean re-implementing CPython's PRNG algorithm and
// its exact call order instead of using math/rand's *rand.Rand the way the
// rest of this module's dependency corpus uses injectable process state
// (see DESIGN.md). The scenarios are still named S1-S6 and built exactly as
// specified so a reader can match them against spec.md §8 one for one.

func gridSingleType(rows, cols, fwSize int, reliability float64) (*Simulator, error) {
	g := NewGridGraph(rows, cols)
	seedFW := firmware.New(firmware.TypeA, 2, fwSize)
	for i := firmware.ChunkID(0); int(i) < fwSize; i++ {
		seedFW.SetChunk(i, make([]byte, 1))
	}
	return NewBuilder().
		WithGraph(g).
		WithDefaultDeviceType(firmware.TypeA).
		WithDefaultRunningFirmware(firmware.Complete(firmware.TypeA, 1, fwSize)).
		WithDefaultLinkReliability(reliability).
		WithNodeOverride(gridCoord{0, 0}, NodeOverride{RunningFirmware: &seedFW}).
		WithShuffle(true).
		WithSeed(123456789).
		Build()
}

// S1: 10x10 grid, single type A, (0,0) seeded at v2, reliability 1.0.
func TestScenarioS1GridSingleTypeReliable(t *testing.T) {
	s, err := gridSingleType(10, 10, 10, 1.0)
	require.NoError(t, err)

	runConvergence(t, s, 2, int(firmware.TypeA))
}

// S2: as S1, reliability 0.99, averaged over 20 runs.
func TestScenarioS2GridSingleTypeLossy99(t *testing.T) {
	if testing.Short() {
		t.Skip("averaged multi-run scenario; skipped in -short")
	}
	avg := avgConvergenceTick(t, func() (*Simulator, error) {
		return gridSingleType(10, 10, 10, 0.99)
	}, 20)
	t.Logf("S2 average convergence tick over 20 runs: %.1f", avg)
	assert.Greater(t, avg, 0.0)
}

// S3: as S1, reliability 0.90, averaged over 20 runs.
func TestScenarioS3GridSingleTypeLossy90(t *testing.T) {
	if testing.Short() {
		t.Skip("averaged multi-run scenario; skipped in -short")
	}
	avg := avgConvergenceTick(t, func() (*Simulator, error) {
		return gridSingleType(10, 10, 10, 0.90)
	}, 20)
	t.Logf("S3 average convergence tick over 20 runs: %.1f", avg)
	assert.Greater(t, avg, 0.0)
}

// S4: 10x10 grid, background type A, two type-B seeds at (0,0) v2 and
// (0,9) v1; asserts all type-B devices converge to v2.
func TestScenarioS4GridTwoTypeBSeeds(t *testing.T) {
	g := NewGridGraph(10, 10)

	seedNewer := firmware.New(firmware.TypeB, 2, 10)
	for i := firmware.ChunkID(0); i < 10; i++ {
		seedNewer.SetChunk(i, make([]byte, 1))
	}
	seedOlder := firmware.Complete(firmware.TypeB, 1, 10)

	s, err := NewBuilder().
		WithGraph(g).
		WithDefaultDeviceType(firmware.TypeA).
		WithDefaultRunningFirmware(firmware.Complete(firmware.TypeA, 1, 10)).
		WithDefaultLinkReliability(1.0).
		WithNodeOverride(gridCoord{0, 0}, NodeOverride{RunningFirmware: &seedNewer}).
		WithNodeOverride(gridCoord{0, 9}, NodeOverride{RunningFirmware: &seedOlder}).
		WithShuffle(true).
		WithSeed(123456789).
		Build()
	require.NoError(t, err)

	runConvergence(t, s, 2, int(firmware.TypeB))
}

// S5: Barbell(5,5), node 0 seeded at v2, single type, reliability 1.0.
func TestScenarioS5BarbellSingleType(t *testing.T) {
	g := NewBarbellGraph(5, 5)
	seedFW := firmware.New(firmware.TypeA, 2, 10)
	for i := firmware.ChunkID(0); i < 10; i++ {
		seedFW.SetChunk(i, make([]byte, 1))
	}

	s, err := NewBuilder().
		WithGraph(g).
		WithDefaultDeviceType(firmware.TypeA).
		WithDefaultRunningFirmware(firmware.Complete(firmware.TypeA, 1, 10)).
		WithDefaultLinkReliability(1.0).
		WithNodeOverride(0, NodeOverride{RunningFirmware: &seedFW}).
		WithShuffle(true).
		WithSeed(123456789).
		Build()
	require.NoError(t, err)

	runConvergence(t, s, 2, int(firmware.TypeA))
}

// S6: Barbell(5,5), one type-B seed in each bell, a path of type-A devices
// bridging them; asserts all type-B devices converge.
func TestScenarioS6BarbellTwoTypeBBells(t *testing.T) {
	g := NewBarbellGraph(5, 5)

	leftSeed := firmware.Complete(firmware.TypeB, 1, 10)
	rightSeed := firmware.New(firmware.TypeB, 2, 10)
	for i := firmware.ChunkID(0); i < 10; i++ {
		rightSeed.SetChunk(i, make([]byte, 1))
	}

	s, err := NewBuilder().
		WithGraph(g).
		WithDefaultDeviceType(firmware.TypeA).
		WithDefaultRunningFirmware(firmware.Complete(firmware.TypeA, 1, 10)).
		WithDefaultLinkReliability(1.0).
		WithNodeOverride(0, NodeOverride{RunningFirmware: &leftSeed}).
		WithNodeOverride(2*5+5, NodeOverride{RunningFirmware: &rightSeed}).
		WithShuffle(true).
		WithSeed(123456789).
		Build()
	require.NoError(t, err)

	runConvergence(t, s, 2, int(firmware.TypeB))
}

// runConvergence runs s until every device of devType reports version, then
// asserts it actually happened within a generous tick budget and that no
// device's version ever decreased along the way.
func runConvergence(t *testing.T, s *Simulator, version, devType int) {
	t.Helper()

	versions := make(map[device.ID]int)
	for _, d := range s.Devices() {
		versions[d.ID()] = int(d.RunningFirmware().Version())
	}

	const budget = 20000
	s.AttachWatcher(func(devices []*device.Device) {
		for _, d := range devices {
			v := int(d.RunningFirmware().Version())
			assert.GreaterOrEqual(t, v, versions[d.ID()], "device %d must never downgrade", d.ID())
			versions[d.ID()] = v
		}
	})

	s.RunUntil(func(devices []*device.Device) bool {
		return simutil.AllDevicesAtVersion(devices, version, devType) || s.Now() >= budget
	})

	require.Less(t, s.Now(), budget, "scenario did not converge within the tick budget")
	assert.True(t, simutil.AllDevicesAtVersion(s.Devices(), version, devType))
}

// avgConvergenceTick builds and runs factory() repetitions times, each to
// convergence of type A at version 2, and returns the mean tick count.
func avgConvergenceTick(t *testing.T, factory func() (*Simulator, error), repetitions int) float64 {
	t.Helper()
	const budget = 50000
	sum := 0
	for i := 0; i < repetitions; i++ {
		s, err := factory()
		require.NoError(t, err)
		s.RunUntil(func(devices []*device.Device) bool {
			return simutil.AllDevicesAtVersion(devices, 2, int(firmware.TypeA)) || s.Now() >= budget
		})
		require.Less(t, s.Now(), budget, "run %d did not converge within the tick budget", i)
		sum += s.Now()
	}
	return float64(sum) / float64(repetitions)
}

// TestPropertyRandomConnectedGraphsConverge is the §8 property-based check:
// randomized Erdős-Rényi-style connected graphs, reliability in (0.5, 1.0],
// firmware size in [1, 64]; every run must terminate and never downgrade.
func TestPropertyRandomConnectedGraphsConverge(t *testing.T) {
	if testing.Short() {
		t.Skip("randomized multi-graph property check; skipped in -short")
	}
	rng := rand.New(rand.NewSource(987654321))

	for trial := 0; trial < 15; trial++ {
		n := 6 + rng.Intn(10)
		g := randomConnectedGraph(rng, n, 0.3)
		fwSize := 1 + rng.Intn(64)
		reliability := 1.0 - rng.Float64()*0.5

		seedFW := firmware.New(firmware.TypeA, 2, fwSize)
		for i := 0; i < fwSize; i++ {
			seedFW.SetChunk(firmware.ChunkID(i), []byte{byte(i)})
		}

		s, err := NewBuilder().
			WithGraph(g).
			WithDefaultDeviceType(firmware.TypeA).
			WithDefaultRunningFirmware(firmware.Complete(firmware.TypeA, 1, fwSize)).
			WithDefaultLinkReliability(reliability).
			WithNodeOverride(0, NodeOverride{RunningFirmware: &seedFW}).
			WithShuffle(true).
			WithSeed(int64(trial)+1).
			Build()
		require.NoError(t, err)

		runConvergence(t, s, 2, int(firmware.TypeA))
	}
}

// randomConnectedGraph builds an Erdős-Rényi graph over n nodes (labeled
// 0..n-1) at edge probability p, then stitches any resulting components
// together with a spanning path so the result is always connected: the
// termination property is only claimed for connected graphs (spec.md §8,
// invariant 1).
func randomConnectedGraph(rng *rand.Rand, n int, p float64) *AdjacencyGraph {
	g := NewAdjacencyGraph()
	for i := 0; i < n; i++ {
		g.AddNode(i)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < p {
				g.AddEdge(i, j)
			}
		}
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) { parent[find(a)] = find(b) }
	for i := 0; i < n; i++ {
		for _, j := range g.Neighbors(i) {
			union(i, j.(int))
		}
	}
	for i := 1; i < n; i++ {
		if find(i) != find(i-1) {
			g.AddEdge(i, i-1)
			union(i, i-1)
		}
	}
	return g
}
