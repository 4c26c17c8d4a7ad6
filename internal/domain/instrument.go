package domain

import "strings"

// InstrumentClass decides how sizes are denominated for a broker.
type InstrumentClass string

const (
	ClassLot    InstrumentClass = "lot"    // FX lots
	ClassCrypto InstrumentClass = "crypto" // fractional coin volume
	ClassShare  InstrumentClass = "share"  // whole shares or contracts
)

// Precision returns the number of decimals a size is rounded to.
func (c InstrumentClass) Precision() int {
	switch c {
	case ClassCrypto:
		return 5
	case ClassShare:
		return 0
	default:
		return 2
	}
}

// InstrumentKey identifies an (instrument, broker) pair for cooldown and duplicate tracking.
type InstrumentKey struct {
	Broker     string `json:"broker"`
	Instrument string `json:"instrument"`
}

func NewInstrumentKey(broker, instrument string) InstrumentKey {
	return InstrumentKey{
		Broker:     strings.ToLower(strings.TrimSpace(broker)),
		Instrument: strings.ToUpper(strings.TrimSpace(instrument)),
	}
}

// String renders the key as "broker:INSTRUMENT". An empty broker renders just the instrument.
func (k InstrumentKey) String() string {
	if k.Broker == "" {
		return k.Instrument
	}
	return k.Broker + ":" + k.Instrument
}

// Target is one unit of work for a cycle: an instrument traded on a broker.
type Target struct {
	Broker     string
	Fallback   string
	Instrument string
}

func (t Target) Key() InstrumentKey {
	return NewInstrumentKey(t.Broker, t.Instrument)
}
