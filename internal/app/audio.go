package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.aimuz.me/huddle/audiocapture"
	"go.aimuz.me/huddle/config"
	"go.aimuz.me/huddle/meeting"
	"go.aimuz.me/huddle/pcm"
)

// sourceOpener opens the loopback capture described by the assistant
// config.
func sourceOpener(cfg config.AssistantConfig) func() (meeting.AudioSource, error) {
	return func() (meeting.AudioSource, error) {
		c := audiocapture.DefaultConfig()
		if d := cfg.BufferDuration(); d > 0 {
			c.BufferDuration = d
		}
		c.DeviceID = cfg.DeviceID
		capture, err := audiocapture.New(c)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}
}

// ListDevices writes the capturable output devices to w.
func ListDevices(w io.Writer) error {
	devices, err := audiocapture.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no active output devices")
		return err
	}
	for _, d := range devices {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", d.ID, d.Name); err != nil {
			return err
		}
	}
	return nil
}

// ProbeResult summarizes a short capture from the configured device.
type ProbeResult struct {
	Format  pcm.Format
	Chunks  int
	Silent  int
	Bytes   int
	Dropped uint64
	PeakRMS float64 // loudest chunk after conversion to 16 kHz mono
}

// Probe captures from the configured device for d and writes what arrived.
func Probe(ctx context.Context, w io.Writer, cfg config.AssistantConfig, d time.Duration) error {
	src, err := sourceOpener(cfg)()
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := probe(ctx, src, d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "format: %s\nblock align: %d\nbytes/sec: %d\nchunks: %d (%d silent, %d dropped)\nbytes: %d\npeak rms: %.4f\n",
		res.Format, res.Format.BlockAlign, res.Format.AvgBytesPerSec,
		res.Chunks, res.Silent, res.Dropped, res.Bytes, res.PeakRMS)
	return err
}

func probe(ctx context.Context, src meeting.AudioSource, d time.Duration) (ProbeResult, error) {
	res := ProbeResult{Format: src.Format()}
	q := audiocapture.NewQueue(0)

	errs := make(chan error, 1)
	onError := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}
	if err := src.Start(q.Push, onError); err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	for {
		c, err := q.Pop(ctx)
		if err != nil {
			break
		}
		res.Chunks++
		res.Bytes += len(c.Data)
		if c.Silent {
			res.Silent++
		}
		if mono := pcm.Resample(c.Data, res.Format); len(mono) > 0 {
			res.PeakRMS = max(res.PeakRMS, pcm.RMS(mono))
		}
	}

	if err := src.Stop(); err != nil {
		return res, err
	}
	res.Dropped = q.Dropped()
	select {
	case err := <-errs:
		return res, err
	default:
		return res, nil
	}
}
