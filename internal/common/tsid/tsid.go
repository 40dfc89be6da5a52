// Package tsid generates the time-sorted identifiers used as Mongo
// _id values for suppliers, purchase orders, batches, agent runs, and
// log entries. Lexicographic order on the encoded string follows
// creation time at millisecond granularity, so _id range scans read
// entities in insertion order.
package tsid

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"
)

// 42 timestamp bits over a 2020 epoch leave headroom past year 2150;
// the low 22 bits absorb same-millisecond bursts.
const (
	epochMillis = 1577836800000
	randomBits  = 22
	idLength    = 13

	// Crockford Base32: no I, L, O, U
	alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// ErrInvalidID reports a string that is not a well-formed id
var ErrInvalidID = errors.New("malformed id")

var defaultGenerator = &Generator{}

// Generator produces ids. The zero value is ready to use.
type Generator struct {
	mu       sync.Mutex
	lastTime int64
	counter  uint32
}

// Generate returns a new 13-character id from the shared generator
func Generate() string { return defaultGenerator.Generate() }

// Generate returns a new 13-character id
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli() - epochMillis

	var buf [4]byte
	rand.Read(buf[:])
	random := binary.BigEndian.Uint32(buf[:]) & ((1 << randomBits) - 1)

	// Ids minted in the same millisecond stay unique through the
	// counter folded into the low half of the random component.
	if now == g.lastTime {
		g.counter++
		random = (random &^ 0xFFFF) | (g.counter & 0xFFFF)
	} else {
		g.lastTime = now
		g.counter = 0
	}

	return encode(uint64(now)<<randomBits | uint64(random))
}

// Timestamp recovers the creation time embedded in an id
func Timestamp(id string) (time.Time, error) {
	value, err := decode(id)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(value>>randomBits) + epochMillis), nil
}

func encode(value uint64) string {
	out := make([]byte, idLength)
	for i := idLength - 1; i >= 0; i-- {
		out[i] = alphabet[value&0x1F]
		value >>= 5
	}
	return string(out)
}

func decode(id string) (uint64, error) {
	if len(id) != idLength {
		return 0, ErrInvalidID
	}
	var value uint64
	for i := 0; i < len(id); i++ {
		idx := strings.IndexByte(alphabet, id[i])
		if idx < 0 {
			return 0, ErrInvalidID
		}
		value = value<<5 | uint64(idx)
	}
	return value, nil
}
