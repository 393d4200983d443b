//go:build !btfdebug

package btf

// debugBreak is a no-op outside of debug builds. See debug.go.
func debugBreak() {}
