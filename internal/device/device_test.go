package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
)

func TestStaticReader(t *testing.T) {
	s, err := NewStaticReader().Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, s.Percent)
	assert.False(t, s.Known())
}

func TestReadPiSugar(t *testing.T) {
	pb := &conntest.Playback{
		Ops: []conntest.IO{
			{W: []byte{regPower}, R: []byte{0x80}},
			{W: []byte{regVoltageHigh}, R: []byte{0x0F}},
			{W: []byte{regVoltageLow}, R: []byte{0xA0}},
			{W: []byte{regPercent}, R: []byte{87}},
		},
	}

	s, err := readPiSugar(pb)
	require.NoError(t, err)
	assert.Equal(t, Stats{Percent: 87, VoltageMv: 4000, Charging: true, Source: "pisugar"}, s)
	assert.True(t, s.Known())
	require.NoError(t, pb.Close())
}

func TestReadPiSugarClampsPercent(t *testing.T) {
	pb := &conntest.Playback{
		Ops: []conntest.IO{
			{W: []byte{regPower}, R: []byte{0x00}},
			{W: []byte{regVoltageHigh}, R: []byte{0x10}},
			{W: []byte{regVoltageLow}, R: []byte{0x68}},
			{W: []byte{regPercent}, R: []byte{130}},
		},
	}

	s, err := readPiSugar(pb)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Percent)
	assert.Equal(t, 4200, s.VoltageMv)
	assert.False(t, s.Charging)
}

func TestReadPiSugarError(t *testing.T) {
	pb := &conntest.Playback{DontPanic: true}
	_, err := readPiSugar(pb)
	assert.Error(t, err)
}
