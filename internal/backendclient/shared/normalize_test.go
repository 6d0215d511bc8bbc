package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampRange_ClampsAndDropsTopP(t *testing.T) {
	temp := 1.5
	topP := 0.9
	req := Request{Temperature: &temp, TopP: &topP}

	out := ClampRange(req, 0, 1)

	require.NotNil(t, out.Temperature)
	require.Equal(t, 1.0, *out.Temperature, "temperature above the upstream max must clamp down")
	require.Nil(t, out.TopP, "top_p must be dropped when temperature is set")
}

func TestClampRange_LeavesTopPWhenTemperatureUnset(t *testing.T) {
	topP := 0.9
	req := Request{TopP: &topP}

	out := ClampRange(req, 0, 1)

	require.Nil(t, out.Temperature)
	require.NotNil(t, out.TopP)
	require.Equal(t, 0.9, *out.TopP)
}

func TestClampRange_WithinRangeUnchanged(t *testing.T) {
	temp := 0.5
	req := Request{Temperature: &temp}

	out := ClampRange(req, 0, 1)

	require.Equal(t, 0.5, *out.Temperature)
}
