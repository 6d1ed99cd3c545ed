// Package crx decodes CRX extension containers into the ZIP archive they wrap.
//
// Layout (all integers little-endian uint32):
//
//	v2: "Cr24" | version | public key length | signature length | public key | signature | zip
//	v3: "Cr24" | version | header length | header (protobuf) | zip
package crx

import (
	"bytes"
	"encoding/binary"
	"fmt"

	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
)

// Magic is the signature every container starts with.
const Magic = "Cr24"

// Supported container versions.
const (
	Version2 uint32 = 2
	Version3 uint32 = 3
)

const (
	prefixLen   = 8 // magic + version
	v2HeaderLen = 16
	v3HeaderLen = 12
)

// zipLocalHeader is the signature of a ZIP local file header.
var zipLocalHeader = []byte{'P', 'K', 0x03, 0x04}

// Header is the decoded fixed part of a container.
type Header struct {
	Magic   string
	Version uint32

	// Version 2 only.
	PublicKeyLength uint32
	SignatureLength uint32

	// Version 3 only.
	HeaderLength uint32
}

// Container is a decoded container. Archive aliases the input slice.
type Container struct {
	Header  Header
	Offset  int
	Archive []byte
}

// Decode parses data as a container and returns the embedded archive.
func Decode(data []byte) (*Container, error) {
	if len(data) < prefixLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the container prefix", pkgerrors.ErrCorruptContainer, len(data))
	}
	if string(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", pkgerrors.ErrCorruptContainer, data[:4])
	}

	h := Header{
		Magic:   Magic,
		Version: binary.LittleEndian.Uint32(data[4:8]),
	}

	var offset uint64
	switch h.Version {
	case Version2:
		if len(data) < v2HeaderLen {
			return nil, fmt.Errorf("%w: truncated v2 header", pkgerrors.ErrCorruptContainer)
		}
		h.PublicKeyLength = binary.LittleEndian.Uint32(data[8:12])
		h.SignatureLength = binary.LittleEndian.Uint32(data[12:16])
		offset = v2HeaderLen + uint64(h.PublicKeyLength) + uint64(h.SignatureLength)
	case Version3:
		if len(data) < v3HeaderLen {
			return nil, fmt.Errorf("%w: truncated v3 header", pkgerrors.ErrCorruptContainer)
		}
		h.HeaderLength = binary.LittleEndian.Uint32(data[8:12])
		offset = v3HeaderLen + uint64(h.HeaderLength)
	default:
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrUnsupportedContainerVersion, h.Version)
	}

	if offset+uint64(len(zipLocalHeader)) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: archive offset %d beyond end of %d-byte container", pkgerrors.ErrCorruptContainer, offset, len(data))
	}
	if !bytes.Equal(data[offset:offset+uint64(len(zipLocalHeader))], zipLocalHeader) {
		return nil, fmt.Errorf("%w: no archive at offset %d", pkgerrors.ErrCorruptContainer, offset)
	}

	return &Container{
		Header:  h,
		Offset:  int(offset),
		Archive: data[offset:],
	}, nil
}

// Encode builds a container around archive. It exists for tooling and tests; the
// key, signature and header bytes are written verbatim and never checked.
func Encode(ver uint32, archive []byte, headerParts ...[]byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	_ = binary.Write(&buf, binary.LittleEndian, ver)

	switch ver {
	case Version2:
		var pub, sig []byte
		if len(headerParts) > 0 {
			pub = headerParts[0]
		}
		if len(headerParts) > 1 {
			sig = headerParts[1]
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pub)))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(sig)))
		buf.Write(pub)
		buf.Write(sig)
	case Version3:
		var hdr []byte
		if len(headerParts) > 0 {
			hdr = headerParts[0]
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(hdr)))
		buf.Write(hdr)
	default:
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrUnsupportedContainerVersion, ver)
	}

	buf.Write(archive)
	return buf.Bytes(), nil
}
