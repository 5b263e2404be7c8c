package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidWAV is returned for files that are not 16-bit PCM WAV
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVFormat is the fmt chunk of a WAV file
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// ReadWAVHeader consumes the RIFF header up to the start of the data chunk and
// returns the format and the data size. Chunks other than fmt and data are skipped.
func ReadWAVHeader(r io.Reader) (WAVFormat, uint32, error) {
	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return WAVFormat{}, 0, fmt.Errorf("%w: read RIFF header: %v", ErrInvalidWAV, err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return WAVFormat{}, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var format WAVFormat
	haveFormat := false

	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return WAVFormat{}, 0, fmt.Errorf("%w: missing data chunk: %v", ErrInvalidWAV, err)
		}

		switch string(ch.ID[:]) {
		case "fmt ":
			if ch.Size < 16 {
				return WAVFormat{}, 0, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrInvalidWAV, ch.Size)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return WAVFormat{}, 0, fmt.Errorf("%w: read fmt chunk: %v", ErrInvalidWAV, err)
			}
			if err := skip(r, int64(ch.Size)-16+int64(ch.Size%2)); err != nil {
				return WAVFormat{}, 0, err
			}
			haveFormat = true

		case "data":
			if !haveFormat {
				return WAVFormat{}, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			if format.AudioFormat != 1 {
				return WAVFormat{}, 0, fmt.Errorf("%w: unsupported audio format %d (only PCM)", ErrInvalidWAV, format.AudioFormat)
			}
			if format.BitsPerSample != 16 {
				return WAVFormat{}, 0, fmt.Errorf("%w: unsupported bit depth %d (only 16-bit)", ErrInvalidWAV, format.BitsPerSample)
			}
			return format, ch.Size, nil

		default:
			if err := skip(r, int64(ch.Size)+int64(ch.Size%2)); err != nil {
				return WAVFormat{}, 0, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: truncated chunk: %v", ErrInvalidWAV, err)
	}
	return nil
}

// WriteWAVHeader writes a 44-byte header for 16-bit PCM of dataSize bytes
func WriteWAVHeader(w io.Writer, sampleRate, channels int, dataSize uint32) error {
	blockAlign := uint16(channels * BytesPerSample)
	header := struct {
		RIFF     [4]byte
		Size     uint32
		WAVE     [4]byte
		FmtID    [4]byte
		FmtSize  uint32
		Format   WAVFormat
		DataID   [4]byte
		DataSize uint32
	}{
		RIFF:    [4]byte{'R', 'I', 'F', 'F'},
		Size:    36 + dataSize,
		WAVE:    [4]byte{'W', 'A', 'V', 'E'},
		FmtID:   [4]byte{'f', 'm', 't', ' '},
		FmtSize: 16,
		Format: WAVFormat{
			AudioFormat:   1,
			Channels:      uint16(channels),
			SampleRate:    uint32(sampleRate),
			ByteRate:      uint32(sampleRate) * uint32(blockAlign),
			BlockAlign:    blockAlign,
			BitsPerSample: 16,
		},
		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}
	return binary.Write(w, binary.LittleEndian, header)
}
