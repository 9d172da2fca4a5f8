package otg

// Packet FIFO access. The OTG_FS data ports move one 32-bit word per access,
// with bytes packed little-endian. Readiness is guaranteed by the interrupt
// that triggered the call, so none of these functions wait or retry.

// PopWord reads one word from the shared receive FIFO.
func (c *Core) PopWord() uint32 {
	return c.bus.Load(FIFO(0))
}

// PushWord writes one word into the transmit FIFO of IN endpoint ep.
func (c *Core) PushWord(ep uint8, w uint32) {
	c.bus.Store(FIFO(ep), w)
}

// PackWord packs up to the first 4 bytes of b into a little-endian word.
// Byte lanes beyond len(b) are zero.
func PackWord(b []byte) uint32 {
	var w uint32
	for i := 0; i < 4 && i < len(b); i++ {
		w |= uint32(b[i]) << (8 * i)
	}
	return w
}

// UnpackWord stores the low bytes of w into dst, at most 4, and returns the
// number of bytes stored.
func UnpackWord(w uint32, dst []byte) int {
	n := min(len(dst), 4)
	for i := 0; i < n; i++ {
		dst[i] = byte(w >> (8 * i))
	}
	return n
}

// WordCount returns the number of FIFO words that carry n bytes.
func WordCount(n int) int {
	return (n + 3) / 4
}

// PushBytes writes data into the transmit FIFO of IN endpoint ep and returns
// the number of words written. The final word is zero-padded when len(data)
// is not a multiple of 4; data is never read past its end.
func (c *Core) PushBytes(ep uint8, data []byte) int {
	words := 0
	for len(data) > 0 {
		n := min(len(data), 4)
		c.PushWord(ep, PackWord(data[:n]))
		data = data[n:]
		words++
	}
	return words
}

// PopBytes pops the words carrying n bytes from the receive FIFO and stores
// as many as fit into dst. It returns the number of bytes stored. Bytes that
// do not fit are discarded, and the FIFO is always advanced past all n bytes.
func (c *Core) PopBytes(dst []byte, n int) int {
	stored := 0
	for i := WordCount(n); i > 0; i-- {
		w := c.PopWord()
		if rem := n - stored; stored < len(dst) && rem > 0 {
			stored += UnpackWord(w, dst[stored:min(len(dst), stored+min(rem, 4))])
		}
	}
	return stored
}

// Discard pops and drops the words carrying n bytes from the receive FIFO.
func (c *Core) Discard(n int) {
	for i := WordCount(n); i > 0; i-- {
		_ = c.PopWord()
	}
}
