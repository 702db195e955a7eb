package kernel

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// stlTriangleSize is the size of one binary STL facet record.
const stlTriangleSize = 50

// stlHeader is the fixed binary STL preamble.
type stlHeader struct {
	Header [80]byte
	Count  uint32
}

// WriteSTL writes m to w as binary STL. The mesh name, truncated to 80
// bytes, fills the header.
func (m *Mesh) WriteSTL(w io.Writer) error {
	if m.TriangleCount() == 0 {
		return errors.New("empty mesh")
	}
	h := stlHeader{Count: uint32(m.TriangleCount())}
	copy(h.Header[:], m.Name)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}

	var b [stlTriangleSize]byte
	for t := 0; t < m.TriangleCount(); t++ {
		i0 := m.Indices[t*3]
		// Facet normal from the first vertex normal; all three are equal
		// for marching cubes output.
		putVec(b[0:], m.Normals, i0)
		for j := 0; j < 3; j++ {
			putVec(b[12+12*j:], m.Vertices, m.Indices[t*3+j])
		}
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func putVec(b []byte, flat []float32, i uint32) {
	for k := uint32(0); k < 3; k++ {
		binary.LittleEndian.PutUint32(b[4*k:], math.Float32bits(flat[i*3+k]))
	}
}
