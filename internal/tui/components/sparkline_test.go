package components

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparkline_ScrollsAndScales(t *testing.T) {
	s := NewSparkline(4, "RPS", lipgloss.NewStyle())
	for _, v := range []uint64{100, 0, 4, 8, 2} {
		s.Add(v)
	}

	assert.Equal(t, []uint64{0, 4, 8, 2}, s.Data)
	assert.Equal(t, uint64(8), s.Max)
	assert.Equal(t, " ▄█▂", s.Graph())
}

func TestSparkline_PadsAndHandlesZero(t *testing.T) {
	s := NewSparkline(3, "", lipgloss.NewStyle())
	s.Add(0)
	assert.Equal(t, "   ", s.Graph())
	assert.Empty(t, NewSparkline(0, "x", lipgloss.NewStyle()).View())
}
