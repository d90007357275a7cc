package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskURL(t *testing.T) {
	short := "https://youtu.be/dQw4w9WgXcQ"
	assert.Equal(t, short, MaskURL(short))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, MaskURL(exact))

	long := "https://www.youtube.com/watch?v=dQw4w9WgXcQ&signature=0123456789abcdef"
	masked := MaskURL(long)
	assert.Equal(t, "https://www.youtube.com/watch?...123456789abcdef", masked)
	assert.Len(t, masked, 48)
}

func TestSetup(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	require.NoError(t, Setup(true, true))
	assert.NotSame(t, prev, Logger)
	assert.True(t, Logger.Desugar().Core().Enabled(-1))
}
