package verify

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Checksum accumulates an order-insensitive 128-bit content checksum.
// Each row's canonical encoding is hashed independently and the hashes
// are combined with XOR, so two row sets match regardless of insertion
// order. Used by in-memory stores and tests; live tables use an
// equivalent SQL-side aggregate.
type Checksum struct {
	hi, lo uint64
	rows   int64
}

// Add hashes one row's canonical encoding into the checksum.
func (c *Checksum) Add(row []byte) {
	h1, h2 := murmur3.Sum128(row)
	c.hi ^= h1
	c.lo ^= h2
	c.rows++
}

// AddFields hashes a row given as discrete fields, length-prefixing each
// field so ("ab","c") and ("a","bc") hash differently.
func (c *Checksum) AddFields(fields ...string) {
	var buf []byte
	var lenPrefix [4]byte
	for _, f := range fields {
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(f)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, f...)
	}
	c.Add(buf)
}

// Sum returns the hex digest over all added rows.
func (c *Checksum) Sum() string {
	return fmt.Sprintf("%016x%016x:%d", c.hi, c.lo, c.rows)
}
