package grpcframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSingleFrame(t *testing.T) {
	d := NewDecoder()
	frame := Encode([]byte("hello"))
	got := d.Decode(frame)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0])
}

func TestDecodeZeroLengthPayload(t *testing.T) {
	d := NewDecoder()
	frame := Encode(nil)
	got := d.Decode(frame)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestDecodeArbitraryChunkSplits(t *testing.T) {
	frames := [][]byte{[]byte("first"), []byte("second message"), []byte("3")}
	var all []byte
	for _, f := range frames {
		all = append(all, Encode(f)...)
	}

	for splitEvery := 1; splitEvery <= len(all); splitEvery++ {
		d := NewDecoder()
		var got [][]byte
		for i := 0; i < len(all); i += splitEvery {
			end := i + splitEvery
			if end > len(all) {
				end = len(all)
			}
			got = append(got, d.Decode(all[i:end])...)
		}
		require.Len(t, got, len(frames), "splitEvery=%d", splitEvery)
		for i, f := range frames {
			assert.True(t, bytes.Equal(f, got[i]), "splitEvery=%d frame=%d", splitEvery, i)
		}
	}
}

func TestDecodeRetainsIncompleteTail(t *testing.T) {
	d := NewDecoder()
	frame := Encode([]byte("abcdef"))
	got := d.Decode(frame[:3])
	assert.Empty(t, got)
	got = d.Decode(frame[3:])
	require.Len(t, got, 1)
	assert.Equal(t, []byte("abcdef"), got[0])
}
