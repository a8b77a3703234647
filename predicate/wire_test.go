package predicate

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	f := newFixture()
	for _, p := range f.samples() {
		t.Run(ToSQL(p), func(t *testing.T) {
			data, err := json.Marshal(Encode(p))
			require.NoError(t, err)

			var w Wire
			require.NoError(t, json.Unmarshal(data, &w))
			got, err := Decode(w, f.star)
			require.NoError(t, err)

			assert.True(t, Equal(p, got))
			for _, tu := range f.tuples() {
				assert.Equal(t, EvaluateTuple(p, tu), EvaluateTuple(got, tu))
			}
		})
	}
}

func TestDecodeUnknownColumn(t *testing.T) {
	f := newFixture()
	_, err := Decode(Wire{Kind: KindValue, Column: `"x"."y"`}, f.star)
	assert.Error(t, err)
	_, err = Decode(Wire{Kind: "xor"}, f.star)
	assert.Error(t, err)
}
