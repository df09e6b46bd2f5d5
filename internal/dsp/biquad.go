package dsp

import "math"

// Biquad is a second-order IIR section in Direct Form I with float64 state.
// Coefficients are stored normalised so that a0 == 1.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// NewBiquad returns a section with unity coefficients.
func NewBiquad() *Biquad {
	return &Biquad{b0: 1}
}

// SetCoefficients installs raw coefficients, normalising by a0.
func (b *Biquad) SetCoefficients(b0, b1, b2, a0, a1, a2 float64) {
	inv := 1 / a0
	b.b0 = b0 * inv
	b.b1 = b1 * inv
	b.b2 = b2 * inv
	b.a1 = a1 * inv
	b.a2 = a2 * inv
}

// SetUnity makes the section an exact identity.
func (b *Biquad) SetUnity() {
	b.b0, b.b1, b.b2, b.a1, b.a2 = 1, 0, 0, 0, 0
}

// Reset clears the delay lines.
func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// Tick filters a single sample.
func (b *Biquad) Tick(x0 float64) float64 {
	y0 := b.b0*x0 + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, x0
	b.y2, b.y1 = b.y1, y0
	return y0
}

// Magnitude returns the linear magnitude response at freq Hz.
func (b *Biquad) Magnitude(sampleRate, freq float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	// Evaluate H(e^jw) with z^-1 = cos(w) - j sin(w).
	c1, s1 := math.Cos(w), math.Sin(w)
	c2, s2 := math.Cos(2*w), math.Sin(2*w)
	numRe := b.b0 + b.b1*c1 + b.b2*c2
	numIm := -(b.b1*s1 + b.b2*s2)
	denRe := 1 + b.a1*c1 + b.a2*c2
	denIm := -(b.a1*s1 + b.a2*s2)
	return math.Hypot(numRe, numIm) / math.Hypot(denRe, denIm)
}

// shelfTerms returns the RBJ cookbook intermediates shared by the shelf and
// peaking designs.
func shelfTerms(sampleRate, freq, q, gainDB float64) (a, cosW, alpha float64) {
	w0 := 2 * math.Pi * freq / sampleRate
	a = math.Pow(10, gainDB/40)
	cosW = math.Cos(w0)
	alpha = math.Sin(w0) / (2 * q)
	return a, cosW, alpha
}

// SetLowShelf configures a low-shelf filter boosting or cutting below freq.
func (b *Biquad) SetLowShelf(sampleRate, freq, q, gainDB float64) {
	a, cosW, alpha := shelfTerms(sampleRate, freq, q, gainDB)
	sqA := 2 * math.Sqrt(a) * alpha

	b.SetCoefficients(
		a*((a+1)-(a-1)*cosW+sqA),
		2*a*((a-1)-(a+1)*cosW),
		a*((a+1)-(a-1)*cosW-sqA),
		(a+1)+(a-1)*cosW+sqA,
		-2*((a-1)+(a+1)*cosW),
		(a+1)+(a-1)*cosW-sqA,
	)
}

// SetHighShelf configures a high-shelf filter boosting or cutting above freq.
func (b *Biquad) SetHighShelf(sampleRate, freq, q, gainDB float64) {
	a, cosW, alpha := shelfTerms(sampleRate, freq, q, gainDB)
	sqA := 2 * math.Sqrt(a) * alpha

	b.SetCoefficients(
		a*((a+1)+(a-1)*cosW+sqA),
		-2*a*((a-1)+(a+1)*cosW),
		a*((a+1)+(a-1)*cosW-sqA),
		(a+1)-(a-1)*cosW+sqA,
		2*((a-1)-(a+1)*cosW),
		(a+1)-(a-1)*cosW-sqA,
	)
}

// SetPeaking configures a peaking filter centred on freq.
func (b *Biquad) SetPeaking(sampleRate, freq, q, gainDB float64) {
	a, cosW, alpha := shelfTerms(sampleRate, freq, q, gainDB)

	b.SetCoefficients(
		1+alpha*a,
		-2*cosW,
		1-alpha*a,
		1+alpha/a,
		-2*cosW,
		1-alpha/a,
	)
}
