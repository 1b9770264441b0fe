package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes samples as a 16-bit mono PCM WAV file at path and
// returns the file size in bytes. Samples outside [-1, 1] are clipped.
func WriteWAV(path string, samples []float32, sampleRate int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating wav file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return 0, fmt.Errorf("encoding wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("finalizing wav file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing wav file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, nil
	}
	return info.Size(), nil
}
