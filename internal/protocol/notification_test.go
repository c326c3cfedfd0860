package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyNone, false},
		{"none", StrategyNone, false},
		{"always-trigger-hashchange", StrategyHashChange, false},
		{"sometimes", StrategyNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid strategy")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_WireFormat(t *testing.T) {
	data, err := Encode(NewFileChange("css/app.css", StrategyHashChange))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"fileChange","filePath":"css/app.css","strategy":"always-trigger-hashchange"}`,
		string(data))
}

func TestEncode_OmitsEmptyStrategy(t *testing.T) {
	data, err := Encode(NewFileChange("app.js", StrategyNone))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "strategy")
}

func TestDecode(t *testing.T) {
	n, err := Decode([]byte(`{"type":"fileChange","filePath":"app.js","strategy":"always-trigger-hashchange"}`))
	require.NoError(t, err)
	assert.Equal(t, "app.js", n.FilePath)
	assert.Equal(t, StrategyHashChange, n.Strategy)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ping"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestToSlash(t *testing.T) {
	assert.Equal(t, "a/b.js", ToSlash("./a/b.js"))
	assert.Equal(t, "a/b.js", ToSlash("a//b.js"))
	assert.Equal(t, "", ToSlash(""))
}
