//go:build !linux

package gpu

// systemMemory is not implemented outside Linux.
func systemMemory() (total, free int64) {
	return 0, 0
}
