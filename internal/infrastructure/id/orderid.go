package id

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	orderNumberPrefix = "VNO"
	// 9 base36 digits cover unix millis until year 5188; fixed width keeps
	// order numbers sortable by creation time.
	timestampWidth = 9
	// 7 base36 digits exceed 2^32, so the counter never wraps within its width.
	counterWidth = 7
)

// OrderNumberGenerator produces unique, time-sortable, human-shareable order
// numbers: VNO + base36 unix millis + base36 counter. The counter is seeded
// with 32 random bits per process, so two instances started in the same
// millisecond still diverge; the order store's unique constraint remains the
// final authority.
type OrderNumberGenerator struct {
	counter atomic.Uint32
	now     func() time.Time
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	g := &OrderNumberGenerator{now: time.Now}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		g.counter.Store(binary.BigEndian.Uint32(seed[:]))
	}
	return g
}

func (g *OrderNumberGenerator) NewOrderNumber() string {
	millis := g.now().UnixMilli()
	seq := g.counter.Add(1)

	var b strings.Builder
	b.Grow(len(orderNumberPrefix) + timestampWidth + counterWidth)
	b.WriteString(orderNumberPrefix)
	b.WriteString(pad36(uint64(millis), timestampWidth))
	b.WriteString(pad36(uint64(seq), counterWidth))
	return b.String()
}

func pad36(v uint64, width int) string {
	s := strings.ToUpper(strconv.FormatUint(v, 36))
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
