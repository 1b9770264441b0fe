package audio

import (
	"bytes"
	"testing"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name  string
		in    []float32
		want  []byte
	}{
		{"empty", nil, []byte{}},
		{"zero", []float32{0}, []byte{0x00, 0x00}},
		{"full scale", []float32{1}, []byte{0xff, 0x7f}},
		{"negative full scale", []float32{-1}, []byte{0x01, 0x80}},
		{"clips above", []float32{1.7}, []byte{0xff, 0x7f}},
		{"clips below", []float32{-1.7}, []byte{0x01, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodePCM16(tt.in); !bytes.Equal(got, tt.want) {
				t.Errorf("encodePCM16(%v) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodePCM16LittleEndianOrder(t *testing.T) {
	sample := float32(0.5)
	got := encodePCM16([]float32{sample})
	v := int16(sample * 32767)
	if got[0] != byte(v) || got[1] != byte(v>>8) {
		t.Errorf("byte order = %x, want little endian of %d", got, v)
	}
}

// An underrun must look like silence in progress, not like the end of the
// stream; oto stops a player whose reader returns an error.
func TestPCMSourceUnderrun(t *testing.T) {
	src := &pcmSource{}
	buf := make([]byte, 16)

	n, err := src.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("empty Read = (%d, %v), want (0, nil)", n, err)
	}

	src.append([]byte{1, 2, 3, 4})
	n, err = src.Read(buf)
	if n != 4 || err != nil {
		t.Fatalf("Read = (%d, %v), want (4, nil)", n, err)
	}
	if src.pending() != 0 {
		t.Errorf("pending = %d after full read", src.pending())
	}

	// Drained queue goes back to silence.
	if n, err := src.Read(buf); n != 0 || err != nil {
		t.Errorf("post-drain Read = (%d, %v), want (0, nil)", n, err)
	}
}

func TestPCMSourceReset(t *testing.T) {
	src := &pcmSource{}
	src.append(make([]byte, 100))
	src.reset()

	if src.pending() != 0 {
		t.Errorf("pending = %d after reset", src.pending())
	}

	src.append([]byte{9})
	if src.pending() != 1 {
		t.Errorf("append after reset pending = %d, want 1", src.pending())
	}
}

func TestPCMSourceFinish(t *testing.T) {
	src := &pcmSource{}
	src.append([]byte{1, 2})
	src.finish()

	if _, err := src.Read(make([]byte, 4)); err == nil {
		t.Error("Read after finish must report the stream closed")
	}

	src.append([]byte{3})
	if src.pending() != 0 {
		t.Error("append after finish stored data")
	}
}

func TestPCMSourcePartialRead(t *testing.T) {
	src := &pcmSource{}
	src.append([]byte{1, 2, 3, 4, 5, 6})

	buf := make([]byte, 4)
	n, err := src.Read(buf)
	if n != 4 || err != nil {
		t.Fatalf("Read = (%d, %v), want (4, nil)", n, err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Errorf("first read = %v", buf)
	}

	n, _ = src.Read(buf)
	if n != 2 || !bytes.Equal(buf[:n], []byte{5, 6}) {
		t.Errorf("second read = %v (%d bytes)", buf[:n], n)
	}
}
