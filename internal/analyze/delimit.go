package analyze

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Delimiter cuts discrete encoded frames out of a byte stream. Next
// returns io.EOF on clean end of stream.
type Delimiter interface {
	Next() ([]byte, error)
}

// DelimiterFactory binds a delimiter to one stream.
type DelimiterFactory func(r io.Reader) Delimiter

// DelimiterByName resolves the configured frame format.
func DelimiterByName(name string) (DelimiterFactory, error) {
	switch name {
	case "mjpeg":
		return NewMJPEGDelimiter, nil
	case "length":
		return NewLengthPrefixedDelimiter, nil
	}
	return nil, fmt.Errorf("unknown frame delimiter %q", name)
}

// mjpegDelimiter scans for JPEG SOI/EOI markers, the framing an mjpeg
// image2pipe stream uses.
type mjpegDelimiter struct {
	r *bufio.Reader
}

func NewMJPEGDelimiter(r io.Reader) Delimiter {
	return &mjpegDelimiter{r: bufio.NewReaderSize(r, 64<<10)}
}

func (d *mjpegDelimiter) Next() ([]byte, error) {
	var prev byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	frame := make([]byte, 2, 16<<10)
	frame[0], frame[1] = 0xFF, 0xD8
	prev = 0
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == 0xFF && b == 0xD9 {
			return frame, nil
		}
		prev = b
	}
}

// lengthPrefixedDelimiter reads 4-byte big-endian length frames.
type lengthPrefixedDelimiter struct {
	r io.Reader
}

func NewLengthPrefixedDelimiter(r io.Reader) Delimiter {
	return &lengthPrefixedDelimiter{r: r}
}

func (d *lengthPrefixedDelimiter) Next() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(d.r, frame); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
