package audio

// cubicInterpolate performs Catmull-Rom spline interpolation between y1 and
// y2, with y0 and y3 as the surrounding support points. x is the fractional
// position in [0, 1].
func cubicInterpolate(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return a0*x*x*x + a1*x*x + a2*x + a3
}

// Resample converts mono samples from one sample rate to another using cubic
// interpolation. Used by the monitor stream, which must feed Opus at 48kHz
// while playback runs at the backend's render rate.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(from) / float64(to)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		y1 := sampleAt(samples, idx)
		y0 := sampleAt(samples, idx-1)
		y2 := sampleAt(samples, idx+1)
		y3 := sampleAt(samples, idx+2)

		out[i] = cubicInterpolate(y0, y1, y2, y3, frac)
	}
	return out
}

// sampleAt reads with edge clamping so interpolation near the boundaries has
// valid support points.
func sampleAt(samples []float32, i int) float32 {
	if i < 0 {
		i = 0
	}
	if i >= len(samples) {
		i = len(samples) - 1
	}
	return samples[i]
}
