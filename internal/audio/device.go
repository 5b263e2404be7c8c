package audio

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Device is a source of 16-bit PCM audio
type Device interface {
	Open() error
	Read(p []byte) (int, error)
	Close() error
	Name() string
}

// ReaderDevice streams raw PCM from any reader, such as stdin fed by arecord or sox
type ReaderDevice struct {
	name      string
	r         io.Reader
	closer    io.Closer
	closeOnce sync.Once
}

// NewReaderDevice wraps r. If r is an io.Closer it is closed with the device.
func NewReaderDevice(name string, r io.Reader) *ReaderDevice {
	d := &ReaderDevice{name: name, r: r}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// Open is a no-op; the reader is already open
func (d *ReaderDevice) Open() error { return nil }

func (d *ReaderDevice) Read(p []byte) (int, error) { return d.r.Read(p) }

// Close closes the underlying reader once
func (d *ReaderDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.closer != nil {
			err = d.closer.Close()
		}
	})
	return err
}

func (d *ReaderDevice) Name() string { return d.name }

// RawFileDevice streams headerless PCM from a file
type RawFileDevice struct {
	path string
	file *os.File
}

// NewRawFileDevice creates a device for a raw PCM file
func NewRawFileDevice(path string) *RawFileDevice {
	return &RawFileDevice{path: path}
}

func (d *RawFileDevice) Open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return err
	}
	d.file = f
	return nil
}

func (d *RawFileDevice) Read(p []byte) (int, error) {
	if d.file == nil {
		return 0, os.ErrClosed
	}
	return d.file.Read(p)
}

func (d *RawFileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

func (d *RawFileDevice) Name() string { return d.path }

// WAVFileDevice streams the PCM data chunk of a WAV file after checking its format
type WAVFileDevice struct {
	path       string
	sampleRate int
	channels   int

	file   *os.File
	data   io.Reader
	format WAVFormat
}

// NewWAVFileDevice creates a device that only accepts 16-bit PCM at the given rate and channel count
func NewWAVFileDevice(path string, sampleRate, channels int) *WAVFileDevice {
	return &WAVFileDevice{path: path, sampleRate: sampleRate, channels: channels}
}

func (d *WAVFileDevice) Open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return err
	}

	format, dataSize, err := ReadWAVHeader(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", d.path, err)
	}
	if int(format.SampleRate) != d.sampleRate {
		_ = f.Close()
		return fmt.Errorf("%s: sample rate %d Hz, capture expects %d Hz", d.path, format.SampleRate, d.sampleRate)
	}
	if int(format.Channels) != d.channels {
		_ = f.Close()
		return fmt.Errorf("%s: %d channels, capture expects %d", d.path, format.Channels, d.channels)
	}

	d.file = f
	d.format = format
	d.data = io.LimitReader(f, int64(dataSize))
	return nil
}

func (d *WAVFileDevice) Read(p []byte) (int, error) {
	if d.data == nil {
		return 0, os.ErrClosed
	}
	return d.data.Read(p)
}

func (d *WAVFileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

func (d *WAVFileDevice) Name() string { return d.path }

// Format returns the parsed header; valid after Open
func (d *WAVFileDevice) Format() WAVFormat { return d.format }

// SelectDevice maps a selector to a device: "" or "-" is stdin, a *.wav path
// is a WAV file, anything else is a raw PCM file.
func SelectDevice(selector string, sampleRate, channels int) Device {
	switch {
	case selector == "" || selector == "-":
		return NewReaderDevice("stdin", os.Stdin)
	case strings.HasSuffix(strings.ToLower(selector), ".wav"):
		return NewWAVFileDevice(selector, sampleRate, channels)
	default:
		return NewRawFileDevice(selector)
	}
}
