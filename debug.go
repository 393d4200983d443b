//go:build btfdebug

package btf

import "runtime"

// debugBreak is invoked whenever a KindBug error is latched. It is wired
// to an actual breakpoint only in debug builds (-tags btfdebug); ordinary
// builds use the no-op in debug_release.go. This mirrors spec.md §7's
// "bug additionally triggers a debug break in development builds".
func debugBreak() {
	runtime.Breakpoint()
}
