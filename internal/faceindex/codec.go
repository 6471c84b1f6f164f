package faceindex

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeBlob serialises every live entry's embedding as a flat sequence of
// little-endian float32 vectors, each preceded by its internal index and
// dimension, so the blob format stays self-describing without depending on
// a particular ANN library's binary layout.
func (idx *Index) encodeBlob() []byte {
	buf := make([]byte, 0, 4+len(idx.entries)*(8+512*4))
	live := 0
	for _, e := range idx.entries {
		if !e.deleted {
			live++
		}
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(live))
	buf = append(buf, countBuf[:]...)

	for i, e := range idx.entries {
		if e.deleted {
			continue
		}
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(i))
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Embedding)))
		buf = append(buf, hdr[:]...)
		for _, f := range e.Embedding {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
			buf = append(buf, b[:]...)
		}
	}
	return buf
}

func decodeBlob(buf []byte) (map[int][]float32, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("faceindex: blob too short")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	out := make(map[int][]float32, count)

	for n := uint32(0); n < count; n++ {
		if off+8 > len(buf) {
			return nil, fmt.Errorf("faceindex: truncated entry header")
		}
		idx := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		dim := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		off += 8

		if off+dim*4 > len(buf) {
			return nil, fmt.Errorf("faceindex: truncated embedding")
		}
		vec := make([]float32, dim)
		for i := 0; i < dim; i++ {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		out[idx] = vec
	}
	return out, nil
}
