package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}
	for _, c := range cases {
		got := formatBytes(c.in)
		assert.Equal(t, c.want, got, "formatBytes(%v)", c.in)
		assert.Len(t, got, 8)
	}
}

func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddSent(100)
	s.AddSent(50)
	s.AddRecv(1200)

	assert.EqualValues(t, 2, s.FramesSent.Load())
	assert.EqualValues(t, 150, s.BytesSent.Load())
	assert.EqualValues(t, 1, s.PacketsRecv.Load())
	assert.EqualValues(t, 1200, s.BytesRecv.Load())
}
