package shaders

import (
	"encoding/binary"

	"github.com/spaghettifunk/lumo/engine/core"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// BytesToWords decodes a little-endian SPIR-V binary into the word slice
// vk.ShaderModuleCreateInfo expects.
func BytesToWords(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, core.Newf("spirv: binary of %d bytes is not a whole number of words", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != SpirvMagic {
		return nil, core.Newf("spirv: bad magic 0x%08x", words[0])
	}
	return words, nil
}

// WordsToBytes is the inverse of BytesToWords.
func WordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}
