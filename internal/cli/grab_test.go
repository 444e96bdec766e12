package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDList32(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []uint32
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "480", []uint32{480}, false},
		{"multiple", "480,570,730", []uint32{480, 570, 730}, false},
		{"spaces and blanks", " 480 , ,570", []uint32{480, 570}, false},
		{"duplicates collapsed", "480,570,480", []uint32{480, 570}, false},
		{"not a number", "480,abc", nil, true},
		{"negative", "-1", nil, true},
		{"overflows uint32", "4294967296", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDList32(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDList64(t *testing.T) {
	got, err := parseIDList64("2867626000,123, 2867626000")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2867626000, 123}, got)

	_, err = parseIDList64("nope")
	require.Error(t, err)
}
