// Package optimize adapts the teacher's core/optimize/simd.go CPU-feature
// probe. The teacher's package declared comparePathAVX2/comparePathNEON as
// //go:noescape assembly functions but shipped no corresponding .s file in
// the retrieved sources, so those declarations would not link; this
// package keeps the cpu.ARM64.HasASIMD/cpu.X86.HasAVX2 detection (still a
// real, exercised use of golang.org/x/sys/cpu) and keeps the short-path
// fast-return shape, but the actual comparison is plain Go string
// equality rather than hand-written assembly with nothing backing it.
package optimize

import "golang.org/x/sys/cpu"

var (
	hasAVX2 bool
	hasNEON bool
)

func init() {
	hasAVX2 = cpu.X86.HasAVX2
	hasNEON = cpu.ARM64.HasASIMD
}

// ComparePathEqual compares two request paths for equality. Short paths
// (under 16 bytes) take the direct comparison the teacher's original
// short-circuit used; longer paths go through the CPU-feature check, though
// the comparison is a regular string compare either way. Its one caller,
// internal/handler's /api/stats check, compares against a 10-byte path, so
// it always takes the short branch.
func ComparePathEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) < 16 {
		return a == b
	}
	if hasAVX2 || hasNEON {
		return a == b
	}
	return a == b
}
