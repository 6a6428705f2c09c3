package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Gain mixing ---

func TestClip16(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{40000, 32767},
		{-32768, -32768},
		{-40000, -32768},
	}
	for _, tt := range tests {
		if got := Clip16(tt.in); got != tt.want {
			t.Errorf("Clip16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMixIntoGain(t *testing.T) {
	acc := make([]int32, 4)
	MixInto(acc, []int16{1000, -1000, 500, -500}, 1)
	MixInto(acc, []int16{1000, -1000, 500, -500}, 0.5)
	want := []int32{1500, -1500, 750, -750}
	for i := range want {
		if acc[i] != want[i] {
			t.Errorf("acc[%d] = %d, want %d", i, acc[i], want[i])
		}
	}
}

func TestMixIntoZeroGainIsSilent(t *testing.T) {
	acc := make([]int32, 2)
	MixInto(acc, []int16{32767, -32768}, 0)
	if acc[0] != 0 || acc[1] != 0 {
		t.Errorf("muted mix wrote %v", acc)
	}
}

func TestClampGain(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.4: 0.4, 1: 1, 3: 1} {
		if got := ClampGain(in); got != want {
			t.Errorf("ClampGain(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRemixMonoToStereo(t *testing.T) {
	got := Remix([]int16{1, 2, 3}, 1, 2)
	want := []int16{1, 1, 2, 2, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRemixStereoToMonoKeepsLeft(t *testing.T) {
	got := Remix([]int16{1, -1, 2, -2}, 2, 1)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Remix stereo->mono = %v, want [1 2]", got)
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestBytesToSamplesIgnoresOddByte(t *testing.T) {
	got := BytesToSamples([]byte{0x00, 0x01, 0xff})
	if len(got) != 1 || got[0] != 256 {
		t.Errorf("BytesToSamples = %v, want [256]", got)
	}
}

// --- WAV assets ---

func writeTone(t *testing.T, path string, frames, rate, channels int) {
	t.Helper()
	samples := make([]int16, frames*channels)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	if err := WriteWAV(path, samples, rate, channels); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
}

func TestReadInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "take.wav")
	writeTone(t, path, SampleRate/2, SampleRate, 1)

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.SampleRate != SampleRate || info.NumChannels != 1 || info.BitDepth != 16 {
		t.Errorf("ReadInfo = %+v", info)
	}
	if info.Frames != SampleRate/2 {
		t.Errorf("Frames = %d, want %d", info.Frames, SampleRate/2)
	}
	if info.Duration() != 0.5 {
		t.Errorf("Duration = %v, want 0.5", info.Duration())
	}
}

func TestReadInfoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInfo(path); !errors.Is(err, ErrNotWAV) {
		t.Errorf("ReadInfo(junk) err = %v, want ErrNotWAV", err)
	}
}

func TestLoadAssetMonoToGraphFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	writeTone(t, path, SampleRate, SampleRate, 1)

	a, err := LoadAsset(path, SampleRate, Channels)
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	if a.Frames != SampleRate {
		t.Errorf("Frames = %d, want %d", a.Frames, SampleRate)
	}
	if len(a.Samples) != SampleRate*Channels {
		t.Errorf("len(Samples) = %d, want %d", len(a.Samples), SampleRate*Channels)
	}
	if a.Samples[2] != 1 || a.Samples[3] != 1 {
		t.Errorf("mono frame 1 not duplicated: %v", a.Samples[:4])
	}
	if a.Duration() != 1.0 {
		t.Errorf("Duration = %v, want 1.0", a.Duration())
	}
}

func TestLoadAssetMissingFile(t *testing.T) {
	_, err := LoadAsset(filepath.Join(t.TempDir(), "nope.wav"), SampleRate, Channels)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadAsset(missing) err = %v, want os.ErrNotExist", err)
	}
}

func TestAssetDurationNil(t *testing.T) {
	var a *Asset
	if a.Duration() != 0 {
		t.Error("nil asset should have zero duration")
	}
}
