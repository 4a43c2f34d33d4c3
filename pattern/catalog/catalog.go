// Package catalog ships the built-in synthesis templates the bridge
// precompiles at startup: basic waveforms, common effects, and a small
// set of percussion models.
package catalog

import (
	"context"
	"fmt"

	"github.com/spaco-sound/spaco/pattern"
	"github.com/spaco-sound/spaco/pattern/manager"
)

// Definition is an uncompiled built-in template.
type Definition struct {
	Name     string
	Type     string
	Source   string
	Metadata pattern.Metadata
}

// Builtins returns the shipped template definitions. The slice is
// rebuilt per call so callers may mutate their copy.
func Builtins() []Definition {
	return []Definition{
		{
			Name: "sine",
			Type: "synth_def",
			Source: `
SynthDef(\basicSine, {
    arg freq=440, amp=0.5, pan=0, attack=0.01, release=1.0, gate=1;
    var env, sig;
    env = EnvGen.kr(Env.asr(attack, 1, release), gate, doneAction: 2);
    sig = SinOsc.ar(freq, 0, amp) * env;
    sig = Pan2.ar(sig, pan);
    Out.ar(0, sig);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "basic sine wave synth",
				"parameters":  []string{"freq", "amp", "pan", "attack", "release", "gate"},
				"category":    "basic_waveform",
			},
		},
		{
			Name: "saw",
			Type: "synth_def",
			Source: `
SynthDef(\basicSaw, {
    arg freq=440, amp=0.5, pan=0, attack=0.01, release=1.0, gate=1;
    var env, sig;
    env = EnvGen.kr(Env.asr(attack, 1, release), gate, doneAction: 2);
    sig = Saw.ar(freq, amp) * env;
    sig = Pan2.ar(sig, pan);
    Out.ar(0, sig);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "basic sawtooth synth",
				"parameters":  []string{"freq", "amp", "pan", "attack", "release", "gate"},
				"category":    "basic_waveform",
			},
		},
		{
			Name: "square",
			Type: "synth_def",
			Source: `
SynthDef(\basicSquare, {
    arg freq=440, amp=0.5, pan=0, attack=0.01, release=1.0, gate=1, width=0.5;
    var env, sig;
    env = EnvGen.kr(Env.asr(attack, 1, release), gate, doneAction: 2);
    sig = Pulse.ar(freq, width, amp) * env;
    sig = Pan2.ar(sig, pan);
    Out.ar(0, sig);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "basic square wave synth",
				"parameters":  []string{"freq", "amp", "pan", "attack", "release", "gate", "width"},
				"category":    "basic_waveform",
			},
		},
		{
			Name: "triangle",
			Type: "synth_def",
			Source: `
SynthDef(\basicTriangle, {
    arg freq=440, amp=0.5, pan=0, attack=0.01, release=1.0, gate=1;
    var env, sig;
    env = EnvGen.kr(Env.asr(attack, 1, release), gate, doneAction: 2);
    sig = LFTri.ar(freq, 0, amp) * env;
    sig = Pan2.ar(sig, pan);
    Out.ar(0, sig);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "basic triangle wave synth",
				"parameters":  []string{"freq", "amp", "pan", "attack", "release", "gate"},
				"category":    "basic_waveform",
			},
		},
		{
			Name: "reverb",
			Type: "effect",
			Source: `
SynthDef(\fxReverb, {
    arg in=0, out=0, mix=0.33, room=0.5, damp=0.5;
    var sig, wet;
    sig = In.ar(in, 2);
    wet = FreeVerb2.ar(sig[0], sig[1], mix, room, damp);
    Out.ar(out, wet);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "stereo reverb",
				"parameters":  []string{"in", "out", "mix", "room", "damp"},
				"category":    "effect",
			},
		},
		{
			Name: "delay",
			Type: "effect",
			Source: `
SynthDef(\fxDelay, {
    arg in=0, out=0, delaytime=0.25, decay=3, mix=0.4;
    var sig, wet;
    sig = In.ar(in, 2);
    wet = CombL.ar(sig, 2, delaytime, decay);
    Out.ar(out, (sig * (1 - mix)) + (wet * mix));
}).add;`,
			Metadata: pattern.Metadata{
				"description": "feedback delay line",
				"parameters":  []string{"in", "out", "delaytime", "decay", "mix"},
				"category":    "effect",
			},
		},
		{
			Name: "metal_bell",
			Type: "percussion",
			Source: `
SynthDef(\metalBell, {
    arg freq=880, amp=0.4, decay=2.5, pan=0;
    var exciter, sig;
    exciter = Impulse.ar(0) * amp;
    sig = Klank.ar(` + "`" + `[[1, 2.32, 4.25, 6.63], nil, [1, 0.8, 0.6, 0.4] * decay], exciter, freq);
    sig = Pan2.ar(sig, pan);
    DetectSilence.ar(sig, doneAction: 2);
    Out.ar(0, sig);
}).add;`,
			Metadata: pattern.Metadata{
				"description": "struck metal bell (Klank resonator bank)",
				"parameters":  []string{"freq", "amp", "decay", "pan"},
				"category":    "percussion",
			},
		},
	}
}

// Register compiles and saves every built-in template through m. Save
// semantics make registration idempotent: re-seeding replaces content
// but keeps each pattern's id and creation time. Returns the number of
// patterns registered.
func Register(ctx context.Context, m *manager.Manager) (int, error) {
	defs := Builtins()
	for _, def := range defs {
		if _, err := m.CompileAndSave(ctx, def.Name, def.Type, def.Source, def.Metadata); err != nil {
			return 0, fmt.Errorf("failed to register builtin pattern %q: %w", def.Name, err)
		}
	}
	return len(defs), nil
}
