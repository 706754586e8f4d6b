package meeting

import (
	"time"

	"go.aimuz.me/huddle/pcm"
)

// vadWindow is the analysis window of the speech gate.
const vadWindow = 30 * time.Millisecond

// speechGate decides whether resampled audio holds enough voiced windows to
// be worth a transcription call. A drain is scored window by window so a
// few seconds of speech inside a long silence still pass.
type speechGate struct {
	threshold float64       // window RMS above which a window counts as speech
	minSpeech time.Duration // voiced time required to transcribe
}

// voiced returns the total duration of windows above the threshold in
// 16 kHz mono 16-bit audio, and the loudest window RMS.
func (g speechGate) voiced(audio []byte) (time.Duration, float64) {
	size := int(vadWindow.Seconds()*pcm.TargetSampleRate) * 2
	var (
		windows int
		peak    float64
	)
	for off := 0; off < len(audio); off += size {
		end := min(off+size, len(audio))
		rms := pcm.RMS(audio[off:end])
		peak = max(peak, rms)
		if rms > g.threshold {
			windows++
		}
	}
	return time.Duration(windows) * vadWindow, peak
}

// pass reports whether audio should be transcribed, with the measurements
// behind the decision. A zero threshold disables the gate.
func (g speechGate) pass(audio []byte) (bool, time.Duration, float64) {
	if g.threshold <= 0 {
		return true, 0, 0
	}
	voiced, peak := g.voiced(audio)
	return voiced >= max(g.minSpeech, vadWindow), voiced, peak
}
