package rbyd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		want Addr
	}{
		{"0xa", Addr{Blocks: []uint32{0xa}}},
		{"0XA", Addr{Blocks: []uint32{0xa}}},
		{"10", Addr{Blocks: []uint32{10}}},
		{"0o17", Addr{Blocks: []uint32{15}}},
		{"0b101", Addr{Blocks: []uint32{5}}},
		{"0xa.1c", Addr{Blocks: []uint32{0xa}, Trunk: 0x1c}},
		{"0x{a,b}", Addr{Blocks: []uint32{0xa, 0xb}}},
		{"0x{a,b}.1c", Addr{Blocks: []uint32{0xa, 0xb}, Trunk: 0x1c}},
		{" 0x2 ", Addr{Blocks: []uint32{2}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddr(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddrRejects(t *testing.T) {
	for _, in := range []string{"", "zz", "0x", "0xg", "0xa.", "0xa.zz", "0x{a,zz}"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddr(in)
			assert.ErrorIs(t, err, ErrBadAddr)
		})
	}
}
