// Package id hands out ULID identifiers for runs and trades.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// generator wraps a monotonic ULID entropy source behind a mutex so
// identifiers minted within the same millisecond still sort.
type generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newGenerator() *generator {
	var seed int64
	_ = binary.Read(rand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &generator{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(seed)), 0),
	}
}

func (g *generator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy).String()
}

var defaultGenerator = newGenerator()

// New returns a fresh time-sortable identifier. IDs only label journal and
// run records; they never feed back into simulation arithmetic.
func New() string {
	return defaultGenerator.next()
}
