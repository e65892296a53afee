// Package seed generates synthetic records for load tests and demos.
package seed

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
)

// Generator produces records with fields field0..fieldN-1 whose values are
// a random mix of ints, floats, bools and hex strings. Floats are stored as
// their shortest decimal text. Generators are not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a deterministic generator for the given seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) Record(numFields int) map[string]value.Value {
	fields := make(map[string]value.Value, numFields)
	for i := 0; i < numFields; i++ {
		fields["field"+strconv.Itoa(i)] = g.Value()
	}
	return fields
}

// Value returns one random scalar.
func (g *Generator) Value() value.Value {
	switch g.rng.IntN(4) {
	case 0:
		return value.Int(int64(g.rng.Int32()))
	case 1:
		return value.String(strconv.FormatFloat(g.rng.Float64(), 'g', -1, 64))
	case 2:
		return value.Bool(g.rng.IntN(2) == 1)
	default:
		return value.String(g.token())
	}
}

// token is a random 8-4-4-4-12 hex string.
func (g *Generator) token() string {
	a, b := g.rng.Uint64(), g.rng.Uint64()
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uint32(a>>32), uint16(a>>16), uint16(a), uint16(b>>48), b&0xffffffffffff)
}

// Device returns a fixed handset datasheet, the record shape used by the
// demo load in cmd/loadtest.
func Device() map[string]value.Value {
	return map[string]value.Value{
		"Device":   value.String("Apple iPhone 14 Pro Max"),
		"Bands":    value.String("SA/NSA/Sub6 - A2894, A2896 261 SA/NSA/Sub6/mmWave - A2651 SA/NSA/Sub6 - A2893 SA/NSA/Sub6 - A2895"),
		"Versions": value.String("A2894 (International); A2651 (USA); A2893 (Canada, Japan); A2896 (China, Hong Kong); A2895 (Russia)"),
		"OS":       value.String("iOS 16, upgradable to iOS 16.5, planned upgrade to iOS 17"),
		"Chipset":  value.String("Apple A16 Bionic (4 nm)"),
		"CPU":      value.String("Hexa-core (2x3.46 GHz Everest + 4x2.02 GHz Sawtooth)"),
		"GPU":      value.String("Apple GPU (5-core graphics)"),
		"WLAN":     value.String("Wi-Fi 802.11 a/b/g/n/ac/6, dual-band, hotspot"),
		"Sensors":  value.String("Face ID, accelerometer, gyro, proximity, compass, barometer"),
	}
}

// ID formats the i-th generated record ID.
func ID(prefix string, i int) string {
	return prefix + "-" + strconv.Itoa(i)
}
