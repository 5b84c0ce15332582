// Package aqi converts PM2.5 concentrations to a US EPA style air quality
// index and maps index values onto display categories.
package aqi

import "math"

// breakpoint maps a concentration interval (µg/m³) onto an index interval.
type breakpoint struct {
	concLo, concHi   float64
	indexLo, indexHi float64
}

// pm25Breakpoints is the EPA PM2.5 table. Order matters: the first band whose
// upper concentration bound is >= C is selected.
var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// MaxIndex is the index reported for concentrations above the table.
const MaxIndex = 500

// FromPM25 computes the index for a PM2.5 concentration. A nil or NaN input
// yields nil. Concentrations above the table clamp to MaxIndex and negative
// concentrations clamp to 0.
func FromPM25(pm25 *float64) *int {
	if pm25 == nil || math.IsNaN(*pm25) {
		return nil
	}
	c := *pm25
	if c < 0 {
		c = 0
	}

	index := MaxIndex
	for _, bp := range pm25Breakpoints {
		if c <= bp.concHi {
			v := (bp.indexHi-bp.indexLo)/(bp.concHi-bp.concLo)*(c-bp.concLo) + bp.indexLo
			index = int(math.Round(v))
			break
		}
	}
	return &index
}

// Value returns a pointer to i.
func Value(i int) *int {
	return &i
}
