package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllOrder(t *testing.T) {
	all := All()
	require.Len(t, all, 14)
	assert.Equal(t, BaseSeq, all[0])
	assert.Equal(t, RAJAHIP, all[len(all)-1])

	// Hand-written variants come before the abstraction-layer variant of the
	// same backend.
	lastNative := map[Backend]int{}
	firstRAJA := map[Backend]int{}
	for i, id := range all {
		if id.Style() == RAJA {
			firstRAJA[id.Backend()] = i
		} else {
			lastNative[id.Backend()] = i
		}
	}
	for b, r := range firstRAJA {
		assert.Less(t, lastNative[b], r, b.String())
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		expected ID
		wantErr  bool
	}{
		{"Base_Seq", BaseSeq, false},
		{"raja_cuda", RAJACUDA, false},
		{"Lambda_HIP", LambdaHIP, false},
		{"Lambda_OpenMPTarget", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := Parse(tc.name)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownVariant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, id)
			assert.Equal(t, id, mustParse(t, id.String()))
		})
	}
}

func mustParse(t *testing.T, name string) ID {
	id, err := Parse(name)
	require.NoError(t, err)
	return id
}

func TestParseList(t *testing.T) {
	ids, err := ParseList([]string{"RAJA_Seq", " Base_Seq", "RAJA_Seq"})
	require.NoError(t, err)
	assert.Equal(t, []ID{RAJASeq, BaseSeq}, ids)

	_, err = ParseList([]string{"Base_Seq", "Base_SYCL"})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestBackendAndStyle(t *testing.T) {
	assert.Equal(t, OpenMPTarget, RAJAOpenMPTarget.Backend())
	assert.Equal(t, Lambda, LambdaCUDA.Style())
	assert.True(t, BaseHIP.IsGPU())
	assert.False(t, BaseOpenMPTarget.IsGPU())
	assert.True(t, BaseOpenMPTarget.IsDevice())
	assert.False(t, RAJAOpenMP.IsDevice())

	id, ok := Of(CUDA, RAJA)
	assert.True(t, ok)
	assert.Equal(t, RAJACUDA, id)

	_, ok = Of(OpenMPTarget, Lambda)
	assert.False(t, ok)

	assert.False(t, ID(99).Valid())
	assert.Equal(t, "Variant(99)", ID(99).String())
}

func TestFeatureSet(t *testing.T) {
	var s FeatureSet
	s = s.Add(Reduction).Add(MPI)
	assert.True(t, s.Has(Reduction))
	assert.False(t, s.Has(Atomic))
	assert.Equal(t, []Feature{Reduction, MPI}, s.List())

	f, err := ParseFeature("atomic")
	require.NoError(t, err)
	assert.Equal(t, Atomic, f)
	_, err = ParseFeature("nope")
	assert.Error(t, err)
}
