package powermust

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	s, err := DecodeStatus([]byte("(230.0 230.0 230.0 010 50.0 13.5 25.0 10000000\r"))
	require.NoError(t, err)

	assert.Equal(t, 230.0, s.GridVoltage)
	assert.Equal(t, 230.0, s.GridFaultVoltage)
	assert.Equal(t, 230.0, s.ACOutputVoltage)
	assert.Equal(t, 10, s.ACOutputLoadPercent)
	assert.Equal(t, 50.0, s.GridFrequency)
	assert.Equal(t, 13.5, s.BatteryVoltage)
	assert.Equal(t, 25.0, s.Temperature)
	assert.Equal(t, StatusBits{UtilityFail: true}, s.Status)
	assert.Equal(t, "(230.0 230.0 230.0 010 50.0 13.5 25.0 10000000", s.Raw)
}

func TestDecodeStatus_DecimalReadingsKeepDigits(t *testing.T) {
	s, err := DecodeStatus([]byte("(228.4 228.4 228.4 010 50.2 13.7 25.3 00000000"))
	require.NoError(t, err)

	assert.Equal(t, 228.4, s.GridVoltage)
	assert.Equal(t, 228.4, s.ACOutputVoltage)
	assert.Equal(t, 50.2, s.GridFrequency)
	assert.Equal(t, 13.7, s.BatteryVoltage)
	assert.Equal(t, 25.3, s.Temperature)

	r, err := DecodeRatings([]byte("#220.0 003 12.10 50.1"))
	require.NoError(t, err)
	assert.Equal(t, 12.1, r.BatteryVoltage)
	assert.Equal(t, 50.1, r.FrequencyRating)
}

func TestDecodeStatus_NoTemperature(t *testing.T) {
	for _, tok := range []string{"--.-", "?.?"} {
		s, err := DecodeStatus([]byte("(228.0 228.0 228.4 006 50.2 27.4 " + tok + " 00001001"))
		require.NoError(t, err, tok)
		assert.True(t, math.IsNaN(s.Temperature), tok)
		assert.True(t, s.Status.UPSTypeStandby)
		assert.True(t, s.Status.BeeperOn)
	}
}

func TestDecodeStatus_Shortfall(t *testing.T) {
	_, err := DecodeStatus([]byte("(230.0 230.0 230.0 010 50.0"))
	assert.ErrorIs(t, err, ErrDecodeShortfall)

	_, err = DecodeStatus([]byte("230.0 230.0 230.0 010 50.0 13.5 25.0 10000000"))
	assert.ErrorIs(t, err, ErrDecodeShortfall)

	_, err = DecodeStatus([]byte("(230.0 abc 230.0 010 50.0 13.5 25.0 10000000"))
	assert.ErrorIs(t, err, ErrDecodeShortfall)
}

func TestDecodeStatus_ShortBitfield(t *testing.T) {
	s, err := DecodeStatus([]byte("(230.0 230.0 230.0 010 50.0 13.5 25.0 011"))
	require.NoError(t, err)
	assert.Equal(t, StatusBits{BatteryLow: true, BypassActive: true}, s.Status)
}

func TestParseStatusBits(t *testing.T) {
	assert.Equal(t, StatusBits{
		UtilityFail: true, BatteryLow: true, BypassActive: true, UPSFailed: true,
		UPSTypeStandby: true, TestInProgress: true, ShutdownActive: true, BeeperOn: true,
	}, ParseStatusBits("11111111"))
	assert.Equal(t, StatusBits{TestInProgress: true}, ParseStatusBits("00000100"))
	assert.Equal(t, StatusBits{}, ParseStatusBits("2x"))
	assert.Equal(t, StatusBits{}, ParseStatusBits(""))
}

func TestDecodeRatings(t *testing.T) {
	r, err := DecodeRatings([]byte("#220.0 007 24.00 50.0\r"))
	require.NoError(t, err)
	assert.Equal(t, 220.0, r.VoltageRating)
	assert.Equal(t, 7, r.CurrentRating)
	assert.Equal(t, 24.0, r.BatteryVoltage)
	assert.Equal(t, 50.0, r.FrequencyRating)
	assert.Equal(t, "#220.0 007 24.00 50.0", r.Raw)
}

func TestDecodeRatings_ShortfallKeepsRaw(t *testing.T) {
	r, err := DecodeRatings([]byte("#220.0 007 24.00"))
	assert.ErrorIs(t, err, ErrDecodeShortfall)
	assert.Equal(t, "#220.0 007 24.00", r.Raw)
}

func TestDecodeInfo(t *testing.T) {
	assert.Equal(t, "#SANTAK          MT1000-PRO  V1.0", DecodeInfo([]byte("#SANTAK          MT1000-PRO  V1.0\r")))
}

func TestIsNakPoll(t *testing.T) {
	assert.True(t, IsNakPoll([]byte("(NAK")))
	assert.True(t, IsNakPoll([]byte("(NAK\r")))
	assert.False(t, IsNakPoll([]byte("NAK")))
	assert.False(t, IsNakPoll([]byte("(23")))
}
