package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerAppAudioSupportedMatchesGOOS(t *testing.T) {
	require.Equal(t, runtime.GOOS == "windows", PerAppAudioSupported())
}

func TestNewClientReturnsNonNil(t *testing.T) {
	require.NotNil(t, NewClient())
}

func TestCaptureFrameSizeMatchesSpec(t *testing.T) {
	require.Equal(t, 480, captureFrameSize)
}
