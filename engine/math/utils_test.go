package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPow2(t *testing.T) {
	cases := map[uint32]uint32{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 12: 16, 16: 16, 17: 32}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(0), AlignUp[uint32](0, 16))
	assert.Equal(t, uint32(16), AlignUp[uint32](8, 16))
	assert.Equal(t, uint32(48), AlignUp[uint32](36, 16))
	assert.Equal(t, uint32(7), AlignUp[uint32](7, 0))
}

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 1, 5))
	assert.Equal(t, float32(-1), Clamp(float32(-3), -1, 1))
	assert.Equal(t, uint32(3), DivCeil[uint32](9, 4))
	assert.Equal(t, uint32(0), DivCeil[uint32](9, 0))
}
