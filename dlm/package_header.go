package dlm

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// PackageHeaderSize is the size of the optional header in front of a bundle.
	PackageHeaderSize = 512
	// PackageMagic identifies a package header.
	PackageMagic uint64 = 0xDEADACDCDCACADDE
)

// PackageHeader is the leading part of a package header. The rest of the 512 bytes is reserved.
type PackageHeader struct {
	Magic    uint64
	Version  uint32
	FileSize uint32
}

// ParsePackageHeader decodes a package header from b. It returns false when b is not a
// complete header carrying the package magic.
func ParsePackageHeader(b []byte) (PackageHeader, bool) {
	if len(b) < PackageHeaderSize {
		return PackageHeader{}, false
	}

	hdr := PackageHeader{
		Magic:    binary.LittleEndian.Uint64(b[0:8]),
		Version:  binary.BigEndian.Uint32(b[8:12]),
		FileSize: binary.BigEndian.Uint32(b[12:16]),
	}
	if hdr.Magic != PackageMagic {
		return PackageHeader{}, false
	}

	return hdr, true
}

// Bytes encodes the header into a zero padded 512-byte block.
func (h PackageHeader) Bytes() []byte {
	b := make([]byte, PackageHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.Magic)
	binary.BigEndian.PutUint32(b[8:12], h.Version)
	binary.BigEndian.PutUint32(b[12:16], h.FileSize)

	return b
}

// CopyBundle copies src to dst. When src starts with a package header the header is dropped
// and exactly FileSize bytes following it are copied, or fewer if src ends first.
// It reports whether a header was stripped.
func CopyBundle(dst io.Writer, src io.Reader) (written int64, stripped bool, err error) {
	first := make([]byte, PackageHeaderSize)
	n, err := io.ReadFull(src, first)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, false, err
	}

	if hdr, ok := ParsePackageHeader(first[:n]); ok {
		written, err = io.Copy(dst, io.LimitReader(src, int64(hdr.FileSize)))
		return written, true, err
	}

	m, err := dst.Write(first[:n])
	written = int64(m)
	if err != nil || n < PackageHeaderSize {
		return written, false, err
	}

	rest, err := io.Copy(dst, src)

	return written + rest, false, err
}
