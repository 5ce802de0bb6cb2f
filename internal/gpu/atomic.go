package gpu

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// AtomicAdd adds v to *addr and returns the old value.
func AtomicAdd(addr *float64, v float64) float64 {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return math.Float64frombits(old)
		}
	}
}

// AtomicMin stores min(*addr, v) and returns the old value.
func AtomicMin(addr *float64, v float64) float64 {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		cur := math.Float64frombits(old)
		if cur <= v {
			return cur
		}
		if atomic.CompareAndSwapUint64(bits, old, math.Float64bits(v)) {
			return cur
		}
	}
}

// AtomicMax stores max(*addr, v) and returns the old value.
func AtomicMax(addr *float64, v float64) float64 {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		cur := math.Float64frombits(old)
		if cur >= v {
			return cur
		}
		if atomic.CompareAndSwapUint64(bits, old, math.Float64bits(v)) {
			return cur
		}
	}
}

// AtomicAddInt adds v to *addr and returns the old value.
func AtomicAddInt(addr *int64, v int64) int64 {
	return atomic.AddInt64(addr, v) - v
}
