package audio

// Clip16 saturates an accumulated sample to the int16 range.
func Clip16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// MixInto adds src scaled by gain onto acc. acc must be at least len(src) long.
func MixInto(acc []int32, src []int16, gain float64) {
	if gain <= 0 {
		return
	}
	if gain == 1 {
		for i, s := range src {
			acc[i] += int32(s)
		}
		return
	}
	for i, s := range src {
		acc[i] += int32(float64(s) * gain)
	}
}

// ClampGain keeps a volume value inside [0,1].
func ClampGain(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Remix converts interleaved samples between channel layouts. Mono is
// duplicated into every output channel; surplus input channels are dropped.
func Remix(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int16, frames*to)
	for f := 0; f < frames; f++ {
		for c := 0; c < to; c++ {
			src := c
			if src >= from {
				src = from - 1
			}
			out[f*to+c] = samples[f*from+src]
		}
	}
	return out
}
