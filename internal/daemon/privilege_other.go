//go:build !linux

package daemon

// checkPrivilege is a no-op off Linux; the native library reports its
// own access failures there.
func checkPrivilege() error { return nil }
