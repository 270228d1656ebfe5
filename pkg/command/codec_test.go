package command

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "set", cmd: Set("apple", "red")},
		{name: "set empty value", cmd: Set("apple", "")},
		{name: "set empty key", cmd: Set("", "v")},
		{name: "remove", cmd: Remove("banana")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			require.Equal(t, tt.cmd, decoded)
		})
	}
}

func TestEncodeRejectsZeroValue(t *testing.T) {
	_, err := Encode(Command{})
	require.Error(t, err)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Encode(Set("k", "v"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "one byte", data: []byte{FormatVersion}},
		{name: "bad version", data: append([]byte{9}, valid[1:]...)},
		{name: "unknown kind", data: []byte{FormatVersion, 7, 1, 'k'}},
		{name: "truncated key", data: []byte{FormatVersion, byte(KindRemove), 5, 'k'}},
		{name: "missing value", data: []byte{FormatVersion, byte(KindSet), 1, 'k'}},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0xFF)},
		{name: "value on remove", data: []byte{FormatVersion, byte(KindRemove), 1, 'k', 1, 'v'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestCommandAccessors(t *testing.T) {
	s := Set("a", "1")
	require.Equal(t, KindSet, s.Kind())
	require.False(t, s.IsTombstone())
	require.Equal(t, "1", s.Value())

	r := Remove("a")
	require.Equal(t, KindRemove, r.Kind())
	require.True(t, r.IsTombstone())
	require.Empty(t, r.Value())
	require.Equal(t, "rm(\"a\")", r.String())
}

func TestCodecProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode inverts encode", prop.ForAll(
		func(key, value string, tombstone bool) bool {
			c := Set(key, value)
			if tombstone {
				c = Remove(key)
			}
			data, err := Encode(c)
			if err != nil {
				return false
			}
			decoded, err := Decode(data)
			return err == nil && decoded == c
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
