package meeting

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"go.aimuz.me/huddle/pcm"
)

// makeAudio returns 16 kHz PCM: silence with a 440 Hz burst of the given
// amplitude starting at offset.
func makeAudio(total, offset, burst time.Duration, amp float64) []byte {
	n := int(total.Seconds() * pcm.TargetSampleRate)
	from := int(offset.Seconds() * pcm.TargetSampleRate)
	to := from + int(burst.Seconds()*pcm.TargetSampleRate)
	out := make([]byte, n*2)
	for i := from; i < to && i < n; i++ {
		v := amp * math.Sin(2*math.Pi*440*float64(i)/pcm.TargetSampleRate)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}

func TestSpeechGate(t *testing.T) {
	gate := speechGate{threshold: 0.02, minSpeech: 200 * time.Millisecond}

	tests := []struct {
		name  string
		gate  speechGate
		audio []byte
		want  bool
	}{
		{"silence", gate, makeAudio(5*time.Second, 0, 0, 0), false},
		{"speech inside long silence", gate, makeAudio(10*time.Second, 4*time.Second, 600*time.Millisecond, 0.3), true},
		{"click too short", gate, makeAudio(5*time.Second, time.Second, 60*time.Millisecond, 0.3), false},
		{"quiet hum below threshold", gate, makeAudio(5*time.Second, 0, 5*time.Second, 0.01), false},
		{"gate disabled", speechGate{}, makeAudio(time.Second, 0, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, voiced, peak := tt.gate.pass(tt.audio)
			if got != tt.want {
				t.Errorf("pass() = %v (voiced %v, peak %.4f), want %v", got, voiced, peak, tt.want)
			}
		})
	}
}

func TestSpeechGateVoicedDuration(t *testing.T) {
	gate := speechGate{threshold: 0.02}
	voiced, peak := gate.voiced(makeAudio(3*time.Second, time.Second, 900*time.Millisecond, 0.5))

	if voiced < 870*time.Millisecond || voiced > 960*time.Millisecond {
		t.Errorf("voiced = %v, want about 900ms", voiced)
	}
	if peak < 0.3 || peak > 0.4 {
		t.Errorf("peak = %.3f, want about 0.354", peak)
	}
}
