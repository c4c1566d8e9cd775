package efs2

import (
	"fmt"
	"io"
	"os"
)

// Image wraps a raw flash dump (optionally ECC-corrected) with the
// minimal capability surface the rest of this package needs: a
// positionable reader plus a close. Modeled on the partial-IO pattern
// used for virtual disk images elsewhere in this toolkit, reduced to
// the read/seek/close slice that applies to a read-only flash dump.
type Image struct {
	name   string
	reader io.Reader
	seeker io.Seeker
	closer io.Closer
}

func (img *Image) Read(p []byte) (int, error) {
	if img.reader == nil {
		return 0, fmt.Errorf("efs2: %s does not support reading", img.name)
	}
	return img.reader.Read(p)
}

func (img *Image) Seek(offset int64, whence int) (int64, error) {
	if img.seeker == nil {
		return 0, fmt.Errorf("efs2: %s does not support seeking", img.name)
	}
	return img.seeker.Seek(offset, whence)
}

func (img *Image) Close() error {
	if img.closer == nil {
		return nil
	}
	return img.closer.Close()
}

// OpenImage opens a raw flash dump file with no ECC layer.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Image{name: path, reader: f, seeker: f, closer: f}, nil
}

// OpenImageECC opens a flash dump through an ECCReader, correcting
// each sub-page as it is streamed or seeked to. logger (may be nil)
// receives a warning for every uncorrectable page the ECC engine
// encounters along the way.
func OpenImageECC(path string, spareParam int, spareType SpareType, bbm, pageWidth int, algo EccAlgo, logger Logger) (*Image, error) {
	r, err := OpenECCReader(path, spareParam, spareType, bbm, pageWidth, algo, logger)
	if err != nil {
		return nil, err
	}
	return &Image{
		name:   path,
		reader: r,
		seeker: eccSeeker{r},
		closer: r,
	}, nil
}

// eccSeeker adapts ECCReader's absolute Seek(to) method to io.Seeker.
type eccSeeker struct {
	r *ECCReader
}

func (s eccSeeker) Seek(offset int64, whence int) (int64, error) {
	var to int64
	switch whence {
	case io.SeekStart:
		to = offset
	case io.SeekCurrent:
		to = s.r.Tell() + offset
	case io.SeekEnd:
		return 0, fmt.Errorf("efs2: SEEK_END is not supported on an ECC-wrapped image")
	default:
		return 0, fmt.Errorf("efs2: unknown whence %d", whence)
	}
	if err := s.r.Seek(to); err != nil {
		return 0, err
	}
	return to, nil
}
