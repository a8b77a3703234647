package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("gob")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	v := map[string]any{"a": 1.5, "b": []any{"x", true}}
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		var out map[string]any
		require.NoError(t, c.Unmarshal(MustMarshal(c, v), &out), c.Name())
		assert.Equal(t, v, out, c.Name())
	}
}

func TestCompressRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("segment-body "), 512)
	random := []byte{0x91, 0x03, 0xfe, 0x44, 0x10}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		for name, data := range map[string][]byte{"compressible": compressible, "tiny": random, "empty": {}} {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				block, err := Compress(data, c)
				require.NoError(t, err)
				if c != CompressionNone && name == "compressible" {
					assert.Less(t, len(block), len(data))
				}
				out, err := Decompress(block)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out))
			})
		}
	}
}

func TestDecompressRejectsCorruptBlocks(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptBlock)

	block, err := Compress(bytes.Repeat([]byte("abc"), 1000), CompressionZSTD)
	require.NoError(t, err)
	_, err = Decompress(block[:len(block)-3])
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
