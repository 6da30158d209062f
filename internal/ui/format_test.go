package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		want  string
		input float64
	}{
		{"0 B/s", 0},
		{"0 B/s", -1},
		{"512 B/s", 512},
		{"1.0 KiB/s", 1024},
		{"1.5 MiB/s", 1.5 * 1024 * 1024},
		{"2.5 GiB/s", 2.5 * 1024 * 1024 * 1024},
		{"100 KiB/s", 100 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRate(tt.input))
		})
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		want  string
		input time.Duration
	}{
		{"--", 0},
		{"--", -1 * time.Second},
		{"30s", 30 * time.Second},
		{"1m 30s", 90 * time.Second},
		{"1h 01m 01s", 3661 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatETA(tt.input))
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "14,302", FormatCount(14302))
	assert.Equal(t, "1,000,000", FormatCount(1000000))
	assert.Equal(t, "-1,000", FormatCount(-1000))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "2s", FormatDuration(1600*time.Millisecond))
	assert.Equal(t, "3m 17s", FormatDuration(197*time.Second))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(1, 2, 0))
	assert.Equal(t, "□□□□", ProgressBar(0, 10, 4))
	assert.Equal(t, "▪▪□□", ProgressBar(5, 10, 4))
	assert.Equal(t, "▪▪▪▪", ProgressBar(20, 10, 4))
	assert.Equal(t, "□□", ProgressBar(3, 0, 2))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "--%", Percent(1, 0))
	assert.Equal(t, "50%", Percent(5, 10))
	assert.Equal(t, "100%", Percent(12, 10))
}
