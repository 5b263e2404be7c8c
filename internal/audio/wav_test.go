package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func wavBytes(t *testing.T, sampleRate, channels int, pcm []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteWAVHeader(&buf, sampleRate, channels, uint32(len(pcm))); err != nil {
		t.Fatal(err)
	}
	buf.Write(pcm)
	return buf.Bytes()
}

func TestReadWAVHeader_RoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	data := wavBytes(t, 16000, 1, pcm)

	r := bytes.NewReader(data)
	format, size, err := ReadWAVHeader(r)
	if err != nil {
		t.Fatalf("ReadWAVHeader: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Errorf("unexpected format %+v", format)
	}
	if size != uint32(len(pcm)) {
		t.Errorf("expected data size %d, got %d", len(pcm), size)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, pcm) {
		t.Errorf("reader should be positioned at the PCM data, got %v", rest)
	}
}

func TestReadWAVHeader_SkipsExtraChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")

	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // odd size plus pad byte

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, WAVFormat{AudioFormat: 1, Channels: 1, SampleRate: 8000, ByteRate: 16000, BlockAlign: 2, BitsPerSample: 16})

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(2))
	buf.Write([]byte{9, 9})

	format, size, err := ReadWAVHeader(&buf)
	if err != nil {
		t.Fatalf("ReadWAVHeader: %v", err)
	}
	if format.SampleRate != 8000 || size != 2 {
		t.Errorf("unexpected result %+v size %d", format, size)
	}
}

func TestReadWAVHeader_Rejects(t *testing.T) {
	eightBit := wavBytes(t, 16000, 1, []byte{1, 2})
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE")},
		{"no data chunk", wavBytes(t, 16000, 1, nil)[:36]},
		{"8-bit", eightBit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadWAVHeader(bytes.NewReader(tt.data)); !errors.Is(err, ErrInvalidWAV) {
				t.Errorf("expected ErrInvalidWAV, got %v", err)
			}
		})
	}
}

func TestWAVFileDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.wav")
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	if err := os.WriteFile(path, wavBytes(t, 16000, 1, pcm), 0o644); err != nil {
		t.Fatal(err)
	}

	dev := NewWAVFileDevice(path, 16000, 1)
	if err := dev.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = dev.Close() }()

	got, err := io.ReadAll(dev)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("expected PCM data only, got %v", got)
	}

	wrongRate := NewWAVFileDevice(path, 8000, 1)
	if err := wrongRate.Open(); err == nil {
		t.Error("expected sample rate mismatch error")
	}
}

func TestSelectDevice(t *testing.T) {
	tests := []struct {
		selector string
		want     string
	}{
		{"", "*audio.ReaderDevice"},
		{"-", "*audio.ReaderDevice"},
		{"call.WAV", "*audio.WAVFileDevice"},
		{"call.pcm", "*audio.RawFileDevice"},
	}
	for _, tt := range tests {
		dev := SelectDevice(tt.selector, 16000, 1)
		if got := typeName(dev); got != tt.want {
			t.Errorf("SelectDevice(%q) = %s, want %s", tt.selector, got, tt.want)
		}
	}
}

func typeName(d Device) string {
	switch d.(type) {
	case *ReaderDevice:
		return "*audio.ReaderDevice"
	case *WAVFileDevice:
		return "*audio.WAVFileDevice"
	case *RawFileDevice:
		return "*audio.RawFileDevice"
	default:
		return "unknown"
	}
}
