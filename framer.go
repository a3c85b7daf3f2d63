package slcan

// lineBuffer is a fixed capacity byte buffer that refuses to grow.
type lineBuffer struct {
	data [MaxLineLength]byte
	n    int
}

func (lb *lineBuffer) append(b byte) error {
	if lb.n == len(lb.data) {
		return ErrBufferOverflow
	}
	lb.data[lb.n] = b
	lb.n++
	return nil
}

func (lb *lineBuffer) bytes() []byte {
	return lb.data[:lb.n]
}

func (lb *lineBuffer) reset() {
	lb.n = 0
}

// LineFramer accumulates bytes into CR terminated commands.
//
// A command may be at most MaxLineLength bytes including the CR. A byte that
// does not fit discards everything buffered so far, itself included, and the
// framer starts over with an empty buffer.
type LineFramer struct {
	buf lineBuffer
}

// Feed consumes one byte. It returns the command without its terminator once
// a CR is seen; the slice is only valid until the next call. ErrBufferOverflow
// is returned when the byte did not fit.
func (lf *LineFramer) Feed(b byte) ([]byte, error) {
	if err := lf.buf.append(b); err != nil {
		lf.buf.reset()
		return nil, err
	}
	if b != CR {
		return nil, nil
	}
	line := lf.buf.bytes()
	lf.buf.reset()
	return line[:len(line)-1], nil
}

// Pending returns the number of buffered bytes.
func (lf *LineFramer) Pending() int {
	return lf.buf.n
}
