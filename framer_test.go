package slcan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(lf *LineFramer, s string) (lines []string, overflows int) {
	for i := 0; i < len(s); i++ {
		line, err := lf.Feed(s[i])
		if err != nil {
			overflows++
			continue
		}
		if line != nil {
			lines = append(lines, string(line))
		}
	}
	return
}

func TestLineFramer(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		lines     []string
		overflows int
		pending   int
	}{
		{
			name:  "single command",
			input: "O\r",
			lines: []string{"O"},
		},
		{
			name:  "several commands",
			input: "S6\rO\rt1230\r",
			lines: []string{"S6", "O", "t1230"},
		},
		{
			name:  "empty command",
			input: "\r",
			lines: []string{""},
		},
		{
			name:    "partial command stays buffered",
			input:   "t12",
			pending: 3,
		},
		{
			name:  "longest command fits",
			input: strings.Repeat("x", MaxLineLength-1) + "\r",
			lines: []string{strings.Repeat("x", MaxLineLength-1)},
		},
		{
			name:      "terminator that does not fit",
			input:     strings.Repeat("x", MaxLineLength) + "\r",
			overflows: 1,
		},
		{
			name:      "33 bytes without terminator",
			input:     strings.Repeat("x", MaxLineLength+1),
			overflows: 1,
		},
		{
			name:      "fresh command after overflow",
			input:     strings.Repeat("x", MaxLineLength+1) + "O\r",
			lines:     []string{"O"},
			overflows: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lf LineFramer
			lines, overflows := feedAll(&lf, tt.input)
			assert.Equal(t, tt.lines, lines)
			assert.Equal(t, tt.overflows, overflows)
			assert.Equal(t, tt.pending, lf.Pending())
		})
	}
}

func TestLineFramerOverflowError(t *testing.T) {
	var lf LineFramer
	for i := 0; i < MaxLineLength; i++ {
		line, err := lf.Feed('a')
		require.NoError(t, err)
		require.Nil(t, line)
	}
	_, err := lf.Feed('a')
	require.ErrorIs(t, err, ErrBufferOverflow)
	assert.Zero(t, lf.Pending())
}
