// Package dsp conditions raw EMG windows: offset removal, powerline notches
// and a band-pass, all applied forward and backward so the output has no
// phase shift relative to the input.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ErrDesign is returned for filter parameters that do not describe a stable
// digital filter at the given sample rate.
var ErrDesign = errors.New("invalid filter design")

// Coeffs is a rational transfer function B(z)/A(z) with A[0] == 1.
type Coeffs struct {
	B []float64
	A []float64
}

// Order returns the filter order.
func (c Coeffs) Order() int { return max(len(c.A), len(c.B)) - 1 }

// Response evaluates the frequency response at f Hz.
func (c Coeffs) Response(f, fs float64) complex128 {
	z := cmplx.Exp(complex(0, -2*math.Pi*f/fs)) // z^-1
	eval := func(p []float64) complex128 {
		var acc complex128
		zk := complex(1, 0)
		for _, v := range p {
			acc += complex(v, 0) * zk
			zk *= z
		}
		return acc
	}
	return eval(c.B) / eval(c.A)
}

// Gain returns |H| at f Hz.
func (c Coeffs) Gain(f, fs float64) float64 {
	return cmplx.Abs(c.Response(f, fs))
}

// Notch designs a second-order IIR notch at f0 Hz with quality factor q,
// i.e. a -3 dB stop band f0/q wide.
func Notch(f0, q, fs float64) (Coeffs, error) {
	if fs <= 0 || f0 <= 0 || f0 >= fs/2 {
		return Coeffs{}, fmt.Errorf("%w: notch at %gHz outside (0, %g)", ErrDesign, f0, fs/2)
	}
	if q <= 0 {
		return Coeffs{}, fmt.Errorf("%w: notch quality factor %g must be positive", ErrDesign, q)
	}

	w0 := 2 * f0 / fs * math.Pi
	bw := w0 / q
	beta := math.Tan(bw / 2)
	gain := 1 / (1 + beta)
	cw := math.Cos(w0)

	return Coeffs{
		B: []float64{gain, -2 * gain * cw, gain},
		A: []float64{1, -2 * gain * cw, 2*gain - 1},
	}, nil
}

// ButterBandpass designs a digital Butterworth band-pass between low and
// high Hz from an analog prototype of the given order, giving a filter of
// twice that order. The edges are pre-warped so the -3 dB points land on
// low and high exactly.
func ButterBandpass(order int, low, high, fs float64) (Coeffs, error) {
	if order < 1 {
		return Coeffs{}, fmt.Errorf("%w: order %d must be at least 1", ErrDesign, order)
	}
	if fs <= 0 || low <= 0 || low >= high || high >= fs/2 {
		return Coeffs{}, fmt.Errorf("%w: band [%g, %g]Hz must satisfy 0 < low < high < %g", ErrDesign, low, high, fs/2)
	}

	// Analog low-pass prototype: poles on the left half of the unit circle.
	proto := make([]complex128, order)
	for i := range proto {
		m := float64(-order + 1 + 2*i)
		proto[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	// Pre-warp the edges for a bilinear transform at fs = 2 (normalised).
	const fs2 = 4.0
	w1 := fs2 * math.Tan(math.Pi*low/fs)
	w2 := fs2 * math.Tan(math.Pi*high/fs)
	bw := w2 - w1
	wo := math.Sqrt(w1 * w2)

	// Low-pass to band-pass: each prototype pole splits in two, and the
	// order zeros land at the origin.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		lp := p * complex(bw/2, 0)
		d := cmplx.Sqrt(lp*lp - complex(wo*wo, 0))
		poles = append(poles, lp+d)
	}
	for _, p := range proto {
		lp := p * complex(bw/2, 0)
		d := cmplx.Sqrt(lp*lp - complex(wo*wo, 0))
		poles = append(poles, lp-d)
	}
	zeros := make([]complex128, order)
	k := math.Pow(bw, float64(order))

	// Bilinear transform.
	num := complex(1, 0)
	den := complex(1, 0)
	dzeros := make([]complex128, 0, 2*order)
	dpoles := make([]complex128, 0, 2*order)
	for _, z := range zeros {
		num *= complex(fs2, 0) - z
		dzeros = append(dzeros, (complex(fs2, 0)+z)/(complex(fs2, 0)-z))
	}
	for _, p := range poles {
		den *= complex(fs2, 0) - p
		dpoles = append(dpoles, (complex(fs2, 0)+p)/(complex(fs2, 0)-p))
	}
	// the remaining order zeros at infinity map to Nyquist
	for i := 0; i < len(poles)-len(zeros); i++ {
		dzeros = append(dzeros, -1)
	}
	k *= real(num / den)

	b := polyFromRoots(dzeros)
	for i := range b {
		b[i] *= k
	}
	return Coeffs{B: b, A: polyFromRoots(dpoles)}, nil
}

// polyFromRoots expands prod(z - r) into real coefficients, highest power
// first. Roots must come in conjugate pairs (or be real).
func polyFromRoots(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// normalized pads B and A to equal length.
func (c Coeffs) normalized() (b, a []float64) {
	n := max(len(c.A), len(c.B))
	b = make([]float64, n)
	a = make([]float64, n)
	copy(b, c.B)
	copy(a, c.A)
	if a[0] != 1 {
		a0 := a[0]
		for i := range a {
			a[i] /= a0
			b[i] /= a0
		}
	}
	return b, a
}

// LFilter runs x through the filter in direct form II transposed, starting
// from state zi (nil for rest). It returns the output and the final state.
func LFilter(c Coeffs, x, zi []float64) (y, zf []float64) {
	b, a := c.normalized()
	n := len(b)
	z := make([]float64, n)
	copy(z, zi)

	y = make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n; j++ {
			z[j-1] = b[j]*xi - a[j]*yi + z[j]
		}
		y[i] = yi
	}
	return y, z[:n-1]
}

// LFilterZI returns the state that makes LFilter's output start at its
// steady-state step response, so a constant input of 1 produces a constant
// output from the first sample.
func LFilterZI(c Coeffs) ([]float64, error) {
	b, a := c.normalized()
	n := len(b) - 1
	if n == 0 {
		return nil, nil
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:] b[0]
	m := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, 0, a[i+1])
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}
	for i := 0; i < n; i++ {
		m.Set(i, i, m.At(i, i)+1)
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("%w: steady state: %v", ErrDesign, err)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// PadLen is the odd-extension length FiltFilt uses for c.
func PadLen(c Coeffs) int {
	return 3 * max(len(c.A), len(c.B))
}

// FiltFilt applies c forward and then backward over x. The signal is
// extended at both ends by an odd reflection of PadLen samples and both
// passes start from the steady state for the first sample they see, which
// keeps edge transients out of the result. zi comes from LFilterZI and may
// be nil to compute it here. len(x) must exceed PadLen(c).
func FiltFilt(c Coeffs, x, zi []float64) ([]float64, error) {
	edge := PadLen(c)
	if len(x) <= edge {
		return nil, fmt.Errorf("%w: %d samples, need more than %d", ErrShape, len(x), edge)
	}
	if zi == nil {
		var err error
		if zi, err = LFilterZI(c); err != nil {
			return nil, err
		}
	}

	ext := oddExtend(x, edge)
	scaled := make([]float64, len(zi))

	for i, v := range zi {
		scaled[i] = v * ext[0]
	}
	y, _ := LFilter(c, ext, scaled)

	reverse(y)
	for i, v := range zi {
		scaled[i] = v * y[0]
	}
	y, _ = LFilter(c, y, scaled)
	reverse(y)

	return y[edge : len(y)-edge], nil
}

func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	out := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := 1; i <= n; i++ {
		out = append(out, 2*x[last]-x[last-i])
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
