package poseidon_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

func TestDomainSeparationProducesDistinctHashes(t *testing.T) {
	a, err := poseidon.HashWithDomain(poseidon.DomainCommitFungible, field.FromUint64(1))
	require.NoError(t, err)
	b, err := poseidon.HashWithDomain(poseidon.DomainCommitPosition, field.FromUint64(1))
	require.NoError(t, err)
	require.False(t, a.Equal(b))
}

func TestSameInputsHashDeterministically(t *testing.T) {
	a, err := poseidon.HashWithDomain(poseidon.DomainMAC, field.FromUint64(7), field.FromUint64(8))
	require.NoError(t, err)
	b, err := poseidon.HashWithDomain(poseidon.DomainMAC, field.FromUint64(7), field.FromUint64(8))
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestTooManyInputsRejected(t *testing.T) {
	els := make([]field.Element, 16)
	for i := range els {
		els[i] = field.FromUint64(uint64(i))
	}
	_, err := poseidon.HashWithDomain(poseidon.DomainMAC, els...)
	require.ErrorIs(t, err, poseidon.ErrTooManyInputs)
}

func TestCacheHitsCounted(t *testing.T) {
	h := poseidon.NewHasher(100)
	_, err := h.HashWithDomain(poseidon.DomainStealthFactor, field.FromUint64(42))
	require.NoError(t, err)
	_, err = h.HashWithDomain(poseidon.DomainStealthFactor, field.FromUint64(42))
	require.NoError(t, err)

	stats := h.Stats()
	require.Equal(t, uint64(1), stats.CacheHits)
	require.Equal(t, uint64(1), stats.CacheMisses)
	require.Equal(t, uint64(2), stats.TotalHashes)
}
