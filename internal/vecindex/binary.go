package vecindex

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Binary format: a fixed header followed by the raw vector data in
// little-endian float32, row-major. The format carries everything needed
// to reload an index without recomputing embeddings.
const (
	formatMagic   uint32 = 0x534d4958 // "SMIX"
	formatVersion uint32 = 1

	// maxVectorCount and maxDimension bound the header fields when
	// decoding so a corrupt header cannot trigger a huge allocation or
	// overflow the element count.
	maxVectorCount = 1 << 32
	maxDimension   = 1 << 16
)

type binaryHeader struct {
	Magic     uint32
	Version   uint32
	Dimension uint32
	Count     uint64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteTo writes the index to w in binary format. It matches the
// io.WriterTo interface for toolchain friendliness.
func (ix *Index) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	hdr := binaryHeader{
		Magic:     formatMagic,
		Version:   formatVersion,
		Dimension: uint32(ix.dim),
		Count:     uint64(ix.count),
	}
	if err := binary.Write(cw, binary.LittleEndian, hdr); err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}

	if err := binary.Write(cw, binary.LittleEndian, ix.data); err != nil {
		return cw.n, fmt.Errorf("write vectors: %w", err)
	}

	return cw.n, nil
}

// Load reads an index previously written with WriteTo.
func Load(r io.Reader) (*Index, error) {
	var hdr binaryHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if hdr.Magic != formatMagic {
		return nil, fmt.Errorf("bad magic 0x%08x: not a vector index file", hdr.Magic)
	}
	if hdr.Version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", hdr.Version)
	}
	if hdr.Dimension == 0 || hdr.Count == 0 {
		return nil, fmt.Errorf("invalid header: dimension %d, count %d", hdr.Dimension, hdr.Count)
	}
	if hdr.Dimension > maxDimension {
		return nil, fmt.Errorf("invalid header: dimension %d exceeds limit", hdr.Dimension)
	}
	if hdr.Count > maxVectorCount || hdr.Count > maxVectorCount/uint64(hdr.Dimension) {
		return nil, fmt.Errorf("invalid header: count %d exceeds limit for dimension %d", hdr.Count, hdr.Dimension)
	}

	data := make([]float32, int(hdr.Count)*int(hdr.Dimension))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}

	return &Index{
		dim:   int(hdr.Dimension),
		count: int(hdr.Count),
		data:  data,
	}, nil
}
