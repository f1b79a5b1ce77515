package monitor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"wattmeter-go/drivers/ina219"
	"wattmeter-go/types"
)

// window keeps the last n samples per quantity.
type window struct {
	n    int
	next int
	full bool

	bus, cur, pwr []float64
	errors        uint64
}

func newWindow(n int) *window {
	if n <= 0 {
		n = 1
	}
	return &window{
		n:   n,
		bus: make([]float64, n),
		cur: make([]float64, n),
		pwr: make([]float64, n),
	}
}

func (w *window) add(s ina219.Sample) {
	w.bus[w.next] = float64(s.Bus_mV)
	w.cur[w.next] = float64(s.Current_uA)
	w.pwr[w.next] = float64(s.Power_uW)
	if w.next++; w.next == w.n {
		w.next, w.full = 0, true
	}
}

func (w *window) len() int {
	if w.full {
		return w.n
	}
	return w.next
}

func (w *window) snapshot() types.PowerStats {
	n := w.len()
	out := types.PowerStats{N: n, Errors: w.errors}
	if n == 0 {
		return out
	}
	bus, cur, pwr := w.bus[:n], w.cur[:n], w.pwr[:n]
	out.BusMean_mV, out.BusStd_mV = meanStd(bus)
	out.CurMean_uA, out.CurStd_uA = meanStd(cur)
	out.CurMin_uA = floats.Min(cur)
	out.CurMax_uA = floats.Max(cur)
	out.PowerMean_uW = stat.Mean(pwr, nil)
	out.PowerMax_uW = floats.Max(pwr)
	return out
}

// meanStd is stat.MeanStdDev with a zero spread for a single sample.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
