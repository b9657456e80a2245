package controller

import (
	"fmt"
	"log/slog"
	"time"
)

// maxSeqWords bounds a pin sequence: 8 GPIOs x 3 roles x 2 directions, three
// raw words per step.
const maxSeqWords = 8 * 3 * 2

// Step is one pin-sequence entry: drive a pin, then optionally settle.
type Step struct {
	Pin     uint32
	Value   int
	DelayMS uint32
}

// Sequence is an ordered GPIO/delay program applied during power and flash
// transitions. Sequences are parsed once at initialization and immutable
// thereafter.
type Sequence []Step

// ParseSequence converts a flat (index, value, delay) word array from the
// configuration into a Sequence. An empty, oversized, or non-triple array is
// a configuration error and aborts bring-up.
func ParseSequence(name string, raw []uint32) (Sequence, error) {
	if len(raw) == 0 || len(raw)%3 != 0 || len(raw) > maxSeqWords {
		return nil, fmt.Errorf("controller: sequence %q: invalid word count %d", name, len(raw))
	}
	seq := make(Sequence, 0, len(raw)/3)
	for i := 0; i < len(raw); i += 3 {
		seq = append(seq, Step{
			Pin:     raw[i],
			Value:   int(int32(raw[i+1])),
			DelayMS: raw[i+2],
		})
	}
	return seq, nil
}

// runSeq applies the steps strictly in declared order. Steps addressing pins
// outside the configured bank are skipped rather than failing: a partial
// hardware configuration must not abort a power transition. Delays are
// coarse millisecond sleeps; callers must not assume sub-millisecond
// accuracy. The caller serializes access to the pin bank.
func (c *Controller) runSeq(seq Sequence) {
	for _, st := range seq {
		if int(st.Pin) < c.hw.Pins.Count() {
			if err := c.hw.Pins.Set(int(st.Pin), st.Value); err != nil {
				slog.Debug("seq: pin set failed", "pin", st.Pin, "err", err)
			}
		}
		if st.DelayMS > 0 {
			time.Sleep(time.Duration(st.DelayMS) * time.Millisecond)
		}
	}
}
