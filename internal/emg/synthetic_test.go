package emg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emgfes/internal/serialmux"
)

func TestSyntheticRotatesBursts(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(5, 750, 1, 42)
	assert.Equal(t, 0, g.Active(0))
	assert.Equal(t, 1, g.Active(750))
	assert.Equal(t, -1, g.Active(5*750))
	assert.Equal(t, 0, g.Active(6*750))

	// mean absolute deviation is clearly larger on the active channel
	var dev [5]float64
	for i := 0; i < 750; i++ {
		s := g.Next()
		require.Len(t, s, 5)
		for ch, v := range s {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 1023)
			d := float64(v - syntheticBaseline)
			if d < 0 {
				d = -d
			}
			dev[ch] += d
		}
	}
	for ch := 1; ch < 5; ch++ {
		assert.Greater(t, dev[0], 3*dev[ch], "channel 0 should dominate during its burst")
	}
}

func TestSyntheticLineParses(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(5, 750, 1, 1)
	line := g.Line()
	require.Equal(t, byte('\n'), line[len(line)-1])
	_, err := ParseSample(line, 5)
	assert.NoError(t, err)
}

func TestLoadFixture(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.txt")
	require.NoError(t, os.WriteFile(path, []byte("1,2,3,4,5\n\n6,7,8,9,10\r\nbad\n"), 0o644))

	lines, err := LoadFixture(path)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	next := CycleLines(lines)
	assert.Equal(t, "1,2,3,4,5\n", string(next()))
	next()
	assert.Equal(t, "bad\n", string(next()))
	assert.Equal(t, "1,2,3,4,5\n", string(next()))

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = LoadFixture(empty)
	assert.Error(t, err)
}

func TestPacedPortFeedsReader(t *testing.T) {
	t.Parallel()

	g := NewSynthetic(5, 750, 1, 7)
	port := NewPacedPort(1000, g.Line)
	require.NoError(t, port.SetReadTimeout(200*time.Millisecond))
	r := NewReader(port, 5)

	for i := 0; i < 20; i++ {
		_, err := r.ReadSample()
		require.NoError(t, err, "sample %d", i)
	}

	require.NoError(t, port.Close())
	// drain whatever was already due, then the closed port reports no data
	var err error
	for i := 0; i < 2000 && err == nil; i++ {
		_, err = r.ReadSample()
	}
	assert.ErrorIs(t, err, ErrNoData)
	assert.True(t, errors.Is(err, serialmux.ErrPortClosed))
}
