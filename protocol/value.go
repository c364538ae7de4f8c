package protocol

// Parameter values and data items travel little endian, 1 to 4 bytes

// PutValue writes the low size bytes of v to out
func PutValue(out OutputBuffer, v uint32, size int) {
	var b [4]byte
	n := fillValue(b[:], v, size)
	out.Output(b[:n])
}

// AppendValue appends the low size bytes of v to dst
func AppendValue(dst []byte, v uint32, size int) []byte {
	var b [4]byte
	n := fillValue(b[:], v, size)
	return append(dst, b[:n]...)
}

func fillValue(b []byte, v uint32, size int) int {
	if size > 4 {
		size = 4
	}
	for i := 0; i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return size
}

// Value decodes a little endian value. Missing high bytes read as zero and
// bytes beyond the fourth are ignored.
func Value(b []byte) uint32 {
	var v uint32
	for i := 0; i < len(b) && i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}

// SignExtend interprets the low size bytes of v as a signed value
func SignExtend(v uint32, size int) int32 {
	switch size {
	case 1:
		return int32(int8(v))
	case 2:
		return int32(int16(v))
	}
	return int32(v)
}
