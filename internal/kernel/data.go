package kernel

// InitReal is the deterministic fill used for real input arrays: smooth,
// positive, and different at every index.
func InitReal(i int) float64 {
	return 0.1 * (float64(i) + 1.1) / (float64(i) + 1.12345)
}

// InitRealScaled is InitReal multiplied by factor.
func InitRealScaled(factor float64) func(i int) float64 {
	return func(i int) float64 { return factor * InitReal(i) }
}

// Const returns a fill that sets every element to v.
func Const(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

// Ramp returns a fill of v[i] = factor·(i mod period + 1) / period.
func Ramp(factor float64, period int) func(int) float64 {
	return func(i int) float64 {
		return factor * float64(i%period+1) / float64(period)
	}
}
