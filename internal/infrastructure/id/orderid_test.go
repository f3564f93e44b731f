package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderNumberFormat(t *testing.T) {
	g := NewOrderNumberGenerator()

	n := g.NewOrderNumber()

	assert.True(t, strings.HasPrefix(n, "VNO"))
	assert.Len(t, n, len("VNO")+timestampWidth+counterWidth)
	assert.Equal(t, strings.ToUpper(n), n)
}

func TestNewOrderNumberUniqueConcurrent(t *testing.T) {
	const total = 10_000
	g := NewOrderNumberGenerator()

	var mu sync.Mutex
	seen := make(map[string]struct{}, total)
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, total/16)
			for j := 0; j < total/16; j++ {
				local = append(local, g.NewOrderNumber())
			}
			mu.Lock()
			for _, n := range local {
				seen[n] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, (total/16)*16, "every generated order number must be distinct")
}

func TestNewOrderNumberSortsByTime(t *testing.T) {
	g := NewOrderNumberGenerator()
	base := time.UnixMilli(1_700_000_000_000)
	g.now = func() time.Time { return base }
	early := g.NewOrderNumber()

	g.now = func() time.Time { return base.Add(time.Second) }
	late := g.NewOrderNumber()

	assert.Less(t, early[:len("VNO")+timestampWidth], late[:len("VNO")+timestampWidth])
}
