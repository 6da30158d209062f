package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	for in, want := range map[string]int64{
		"0":      0,
		"512":    512,
		"512b":   512,
		"4K":     4 << 10,
		"4k":     4 << 10,
		"64K":    64 << 10,
		"16M":    16 << 20,
		"64M":    64 << 20,
		"2G":     2 << 30,
		"1T":     1 << 40,
		"1.5G":   3 << 29,
		"0.5M":   512 << 10,
		" 8K ":   8 << 10,
		"10MiB":  10 << 20,
		"64 KiB": 64 << 10,
		"2 GB":   2_000_000_000,
	} {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseSizeRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "K", "lots", "4X", "ten M", "99999999999999999999 GB"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
}
