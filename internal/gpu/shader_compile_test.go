//go:build !nogpu

package gpu

import (
	"strings"
	"testing"

	"github.com/gogpu/naga"
)

// naga has a handful of known gaps (runtime-sized arrays, certain atomic
// lowerings) documented by the teacher's own TestCoarseShaderCompilation;
// mirror its skip-on-unsupported-feature behaviour instead of failing the
// suite on a compiler limitation unrelated to the shader's correctness.
func skippableNagaError(err error) (string, bool) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "runtime-sized arrays not yet implemented"),
		strings.Contains(msg, "not yet implemented"),
		strings.Contains(msg, "not supported"),
		strings.Contains(msg, "lowering error"),
		strings.Contains(msg, "atomic"):
		return msg, true
	default:
		return msg, false
	}
}

// TestSplatShaderCompilation validates every embedded compute-stage WGSL
// source compiles under naga, one stage per subtest, the same shape as
// the teacher's TestCoarseShaderCompilation/TestGPUFlattenShaderCompile.
func TestSplatShaderCompilation(t *testing.T) {
	stages := []struct {
		name   string
		source string
	}{
		{"project", shaderSplatProject},
		{"depthkey", shaderSplatDepthKey},
		{"radixsort", shaderSplatRadixSort},
		{"tilebin", shaderSplatTileCount},
		{"scan", shaderSplatScan},
		{"tilefill", shaderSplatTileFill},
		{"raster", shaderSplatRaster},
	}

	for _, st := range stages {
		t.Run(st.name, func(t *testing.T) {
			if st.source == "" {
				t.Fatalf("%s shader source is empty", st.name)
			}

			spirv, err := naga.Compile(st.source)
			if err != nil {
				if msg, skip := skippableNagaError(err); skip {
					t.Skipf("skipping: naga limitation: %v", msg)
				}
				t.Fatalf("failed to compile %s shader: %v", st.name, err)
			}

			if len(spirv) < 4 {
				t.Fatalf("%s shader: SPIR-V output too short (%d bytes)", st.name, len(spirv))
			}

			magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
			if magic != 0x07230203 {
				t.Errorf("%s shader: invalid SPIR-V magic 0x%08X, want 0x07230203", st.name, magic)
			}

			t.Logf("%s shader compiled to %d bytes of SPIR-V", st.name, len(spirv))
		})
	}
}
