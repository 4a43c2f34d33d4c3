package compile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaco-sound/spaco/pattern"
)

func TestCompileSynthDefFoldsConstants(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"multiply", "SinOsc.ar(220 * 2)", "SinOsc.ar(440)"},
		{"add", "SinOsc.ar(440+110)", "SinOsc.ar(550)"},
		{"subtract", "SinOsc.ar(500 - 60)", "SinOsc.ar(440)"},
		{"exact division", "SinOsc.ar(880 / 2)", "SinOsc.ar(440)"},
		{"inexact division kept", "SinOsc.ar(881 / 2)", "SinOsc.ar(881 / 2)"},
		{"division by zero kept", "SinOsc.ar(440 / 0)", "SinOsc.ar(440 / 0)"},
		{"float operand kept", "SinOsc.ar(1.5 * 2)", "SinOsc.ar(1.5 * 2)"},
		{"trailing float kept", "SinOsc.ar(2 * 1.5)", "SinOsc.ar(2 * 1.5)"},
		{"whitespace trimmed", "  SinOsc.ar(440)\n", "SinOsc.ar(440)"},
		{"multiple folds", "Pulse.ar(110 * 2, 1 / 2 + 0)", "Pulse.ar(220, 1 / 2 + 0)"},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := c.Compile("sine", "synth_def", tt.source, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.CompiledCode)
		})
	}
}

func TestCompileEffectOnlyTrims(t *testing.T) {
	c := New(nil)

	p, err := c.Compile("reverb", "effect", "  FreeVerb.ar(in, 0.5 * 2)  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "FreeVerb.ar(in, 0.5 * 2)", p.CompiledCode)
}

func TestCompileFillsPattern(t *testing.T) {
	c := New(nil)
	md := pattern.Metadata{"category": "basic_waveform"}

	p, err := c.Compile("sine", "synth_def", "SinOsc.ar(440)", md)
	require.NoError(t, err)

	assert.Empty(t, p.ID)
	assert.Equal(t, "sine", p.Name)
	assert.Equal(t, "synth_def", p.Type)
	assert.Equal(t, "SinOsc.ar(440)", p.SourceCode)
	assert.Equal(t, md, p.Metadata)
	assert.GreaterOrEqual(t, p.CompilationTime, 0.0)
}

func TestCompileEmptySource(t *testing.T) {
	c := New(nil)

	for _, source := range []string{"", "   ", "\n\t"} {
		_, err := c.Compile("sine", "synth_def", source, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, pattern.ErrCompile)
	}

	stats := c.Stats()
	assert.Equal(t, 0, stats.TotalCompiled)
	assert.Equal(t, 3, stats.Errors)
}

func TestCompilerStats(t *testing.T) {
	c := New(nil)

	for i := 0; i < 3; i++ {
		_, err := c.Compile("sine", "synth_def", "SinOsc.ar(440)", nil)
		require.NoError(t, err)
	}
	_, err := c.Compile("broken", "synth_def", "", nil)
	require.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, 3, stats.TotalCompiled)
	assert.Equal(t, 1, stats.Errors)
	assert.GreaterOrEqual(t, stats.TotalCompileTime, time.Duration(0))
	assert.Equal(t, stats.TotalCompileTime/3, stats.AvgCompileTime())
}

func TestAvgCompileTimeEmpty(t *testing.T) {
	assert.Equal(t, time.Duration(0), Stats{}.AvgCompileTime())
}
