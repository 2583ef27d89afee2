package sortition

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func testKey(n uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[12:], n)
	return k
}

// recomputeTotal sums every leaf directly, bypassing the cached sums.
func recomputeTotal(t *Tree) *big.Int {
	sum := big.NewInt(0)
	for _, key := range t.Leaves() {
		sum.Add(sum, t.Weight(key))
	}
	return sum
}

// verifySums checks that every internal node equals the sum of its children.
func verifySums(tb testing.TB, t *Tree) {
	tb.Helper()
	for level := 1; level < len(t.levels); level++ {
		below := t.levels[level-1]
		for i, node := range t.levels[level] {
			sum := big.NewInt(0)
			first := i * t.branching
			for child := first; child < first+t.branching && child < len(below); child++ {
				sum.Add(sum, below[child])
			}
			if node.Cmp(sum) != 0 {
				tb.Fatalf("level %d node %d caches %s, children sum to %s", level, i, node, sum)
			}
		}
	}
}

func TestWeightConservation(t *testing.T) {
	for _, branching := range []int{2, 3, 4, 7} {
		tree := MustNew(branching)
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 500; i++ {
			key := testKey(uint64(rng.Intn(60)))
			weight := big.NewInt(rng.Int63n(1000))
			if err := tree.Set(key, weight); err != nil {
				t.Fatalf("branching %d set %d: %v", branching, i, err)
			}
			verifySums(t, tree)
			if tree.TotalWeight().Cmp(recomputeTotal(tree)) != 0 {
				t.Fatalf("branching %d: cached total %s != recomputed %s",
					branching, tree.TotalWeight(), recomputeTotal(tree))
			}
		}
	}
}

func TestZeroWeightSoftDelete(t *testing.T) {
	tree := MustNew(2)
	a, b := testKey(1), testKey(2)
	if err := tree.Set(a, big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if err := tree.Set(b, big.NewInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := tree.Set(a, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}

	if tree.Len() != 1 {
		t.Fatalf("expected 1 active leaf, got %d", tree.Len())
	}
	if tree.TotalWeight().Int64() != 5 {
		t.Fatalf("expected total 5, got %s", tree.TotalWeight())
	}
	// Every remaining draw value must land on b.
	for v := int64(0); v < 5; v++ {
		key, err := tree.Draw(big.NewInt(v))
		if err != nil {
			t.Fatal(err)
		}
		if key != b {
			t.Fatalf("draw(%d) selected deleted leaf", v)
		}
	}
	// Slot reuse: reactivating a keeps accounting intact.
	if err := tree.Set(a, big.NewInt(3)); err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 2 || tree.TotalWeight().Int64() != 8 {
		t.Fatalf("reactivation broke accounting: len=%d total=%s", tree.Len(), tree.TotalWeight())
	}
}

func TestDrawDeterminism(t *testing.T) {
	tree := MustNew(3)
	for i := uint64(1); i <= 20; i++ {
		if err := tree.Set(testKey(i), big.NewInt(int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	total := tree.TotalWeight()
	for trial := 0; trial < 50; trial++ {
		v := big.NewInt(int64(trial * 4 % 210))
		if v.Cmp(total) >= 0 {
			continue
		}
		first, err := tree.Draw(v)
		if err != nil {
			t.Fatal(err)
		}
		second, err := tree.Draw(v)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Fatalf("draw(%s) not deterministic: %x vs %x", v, first, second)
		}
	}
}

func TestDrawRangePartition(t *testing.T) {
	// Every value in [0, total) must map to exactly the leaf whose cumulative
	// range contains it, in slot order.
	tree := MustNew(2)
	weights := []int64{3, 1, 4, 2}
	for i, w := range weights {
		if err := tree.Set(testKey(uint64(i)), big.NewInt(w)); err != nil {
			t.Fatal(err)
		}
	}
	expected := []Key{}
	for i, w := range weights {
		for j := int64(0); j < w; j++ {
			expected = append(expected, testKey(uint64(i)))
		}
	}
	for v := 0; v < len(expected); v++ {
		key, err := tree.Draw(big.NewInt(int64(v)))
		if err != nil {
			t.Fatal(err)
		}
		if key != expected[v] {
			t.Fatalf("draw(%d) = %x, want %x", v, key, expected[v])
		}
	}
}

func TestDrawErrors(t *testing.T) {
	tree := MustNew(2)
	if _, err := tree.Draw(big.NewInt(0)); !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("expected empty tree error, got %v", err)
	}
	if err := tree.Set(testKey(1), big.NewInt(4)); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Draw(big.NewInt(4)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range for value == total, got %v", err)
	}
	if _, err := tree.Draw(big.NewInt(-1)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range for negative value, got %v", err)
	}
	if err := tree.Set(testKey(2), big.NewInt(-1)); !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected negative weight error, got %v", err)
	}
}

func TestDrawFairness(t *testing.T) {
	tree := MustNew(2)
	weights := map[Key]int64{
		testKey(1): 1,
		testKey(2): 3,
		testKey(3): 6,
	}
	for key, w := range weights {
		if err := tree.Set(key, big.NewInt(w)); err != nil {
			t.Fatal(err)
		}
	}
	total := tree.TotalWeight()

	const trials = 40_000
	counts := make(map[Key]int)
	seed := sha256.Sum256([]byte("fairness"))
	for i := 0; i < trials; i++ {
		v, err := ReduceEntropy(seed[:], total)
		if err != nil {
			t.Fatal(err)
		}
		key, err := tree.Draw(v)
		if err != nil {
			t.Fatal(err)
		}
		counts[key]++
		seed = sha256.Sum256(seed[:])
	}

	for key, w := range weights {
		expected := float64(trials) * float64(w) / 10.0
		got := float64(counts[key])
		if got < expected*0.9 || got > expected*1.1 {
			t.Fatalf("leaf weight %d drawn %v times, expected ~%v", w, got, expected)
		}
	}
}

func TestReduceEntropyBounds(t *testing.T) {
	seed := sha256.Sum256([]byte("bounds"))
	for _, total := range []int64{1, 2, 7, 1000, 1 << 40} {
		v, err := ReduceEntropy(seed[:], big.NewInt(total))
		if err != nil {
			t.Fatal(err)
		}
		if v.Sign() < 0 || v.Cmp(big.NewInt(total)) >= 0 {
			t.Fatalf("reduced value %s outside [0, %d)", v, total)
		}
	}
	if _, err := ReduceEntropy(seed[:], big.NewInt(0)); !errors.Is(err, ErrZeroTotal) {
		t.Fatalf("expected zero total error, got %v", err)
	}
}

func TestNewRejectsSmallBranching(t *testing.T) {
	if _, err := New(1); !errors.Is(err, ErrInvalidBranching) {
		t.Fatalf("expected invalid branching, got %v", err)
	}
}
