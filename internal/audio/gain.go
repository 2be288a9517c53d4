package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Scale returns a copy of samples with the given gain applied. Results are
// clipped to [-1, 1].
func Scale(samples []float32, gain float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := float64(s) * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}

// ScaleRamped scales a clip to the target gain, easing the first rampSamples
// from the previous gain along a smoothstep curve. A volume change that
// re-renders an already-playing buffer would otherwise produce a step
// discontinuity at sample zero, heard as a click.
func ScaleRamped(samples []float32, from, to float64, rampSamples int) []float32 {
	if rampSamples > len(samples) {
		rampSamples = len(samples)
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		gain := to
		if i < rampSamples {
			t := float64(i) / float64(rampSamples)
			gain = from + (to-from)*Smoothstep(t)
		}
		v := float64(s) * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}

// ClampVolume bounds a volume value to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
