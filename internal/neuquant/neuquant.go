// Package neuquant implements the NeuQuant color quantizer: a Kohonen
// self-organizing map that learns a palette of up to 256 colors from a
// flat BGR byte buffer and provides approximate nearest-neighbor lookup
// against the learned palette.
//
// The arithmetic here is exact integer fixed-point, matching the
// original NeuQuant reference bit-for-bit. Do not "clean up" the shifts
// and magic constants: they are the algorithm.
package neuquant

const (
	netbiasshift = 4
	intbiasshift = 16
	intbias      = 1 << intbiasshift

	gammashift = 10
	betashift  = 10
	beta       = intbias >> betashift
	betagamma  = intbias << (gammashift - betashift)

	radiusbiasshift = 6
	radiusbias      = 1 << radiusbiasshift
	radiusdec       = 30

	initalpha = 1 << 10

	radbiasshift   = 8
	radbias        = 1 << radbiasshift
	alpharadbshift = 18
	alpharadbias   = 1 << alpharadbshift

	ncycles = 100

	minpicturebytes = 3 * 503
)

var primes = [4]int{499, 491, 487, 503}

// Quantizer is a NeuQuant network of up to 256 neurons. The zero value
// is not usable; construct with New.
type Quantizer struct {
	n int

	// network columns: [0]=B, [1]=G, [2]=R, [3]=original index, shifted
	// left by netbiasshift while learning and unshifted by Unbias.
	network [4][]int32

	freq []int32
	bias []int32

	netindex [256]int32
	radpower []int32
}

// New creates a Quantizer that will learn n (<=256) neurons.
func New(n int) *Quantizer {
	q := &Quantizer{n: n}
	for k := range q.network {
		q.network[k] = make([]int32, n)
	}
	q.freq = make([]int32, n)
	q.bias = make([]int32, n)

	for i := 0; i < n; i++ {
		v := int32((i << (netbiasshift + 8)) / n)
		q.network[0][i] = v
		q.network[1][i] = v
		q.network[2][i] = v
		q.network[3][i] = 0
		q.freq[i] = intbias / int32(n)
		q.bias[i] = 0
	}

	q.radpower = make([]int32, n>>3)
	return q
}

// N returns the number of neurons the quantizer was constructed with.
func (q *Quantizer) N() int { return q.n }

// Learn trains the network against pix, a flat buffer of BGR triples.
// samplefac is the caller's quality/speed sampling factor (1 = every
// pixel, higher values sample more sparsely).
func (q *Quantizer) Learn(pix []byte, samplefac int) {
	length := len(pix)
	if length < minpicturebytes {
		samplefac = 1
	}
	if samplefac < 1 {
		samplefac = 1
	}

	samplepixels := length / (3 * samplefac)
	alphadec := int32(30 + (samplefac-1)/3)
	delta := samplepixels / ncycles
	if delta < 1 {
		delta = 1
	}

	initrad := int32(q.n >> 3)
	alpha := int32(initalpha)
	radius := initrad * radiusbias
	rad := radius >> radiusbiasshift
	if rad <= 1 {
		rad = 0
	}
	if rad > 0 {
		q.computeRadpower(rad, alpha)
	}

	step := stride(length)

	pix0 := 0
	for i := 0; i < samplepixels; i++ {
		b := int32(pix[pix0]) << netbiasshift
		g := int32(pix[pix0+1]) << netbiasshift
		r := int32(pix[pix0+2]) << netbiasshift

		j := q.contest(b, g, r)
		q.alterSingle(alpha, j, b, g, r)
		if rad != 0 {
			q.alterNeighbor(rad, j, b, g, r)
		}

		pix0 += step
		for pix0 >= length {
			pix0 -= length
		}

		if (i+1)%int(delta) == 0 {
			alpha -= alpha / alphadec
			radius -= radius / radiusdec
			rad = radius >> radiusbiasshift
			if rad <= 1 {
				rad = 0
			}
			if rad > 0 {
				q.computeRadpower(rad, alpha)
			}
		}
	}
}

// stride picks the pixel-triple byte step used while sampling, per the
// NeuQuant reference: the first of the four primes that does not evenly
// divide the buffer length, times 3, or 3 outright for small buffers.
func stride(length int) int {
	if length < minpicturebytes {
		return 3
	}
	for _, p := range primes {
		if length%p != 0 {
			return p * 3
		}
	}
	return primes[3] * 3
}

func (q *Quantizer) computeRadpower(rad, alpha int32) {
	for n := int32(0); n < rad; n++ {
		q.radpower[n] = alpha * (((rad*rad - n*n) * radbias) / (rad * rad))
	}
}

// contest runs one biased-competitive-learning pass over every neuron
// and returns the index of the bias-adjusted winner.
func (q *Quantizer) contest(b, g, r int32) int32 {
	bestd := int32(1 << 30)
	bestbiasd := bestd
	bestpos := int32(-1)
	bestbiaspos := bestpos

	for i := int32(0); i < int32(q.n); i++ {
		dist := abs32(q.network[0][i] - b)
		dist += abs32(q.network[1][i] - g)
		dist += abs32(q.network[2][i] - r)
		if dist < bestd {
			bestd = dist
			bestpos = i
		}

		biasdist := dist - (q.bias[i] >> (intbiasshift - netbiasshift))
		if biasdist < bestbiasd {
			bestbiasd = biasdist
			bestbiaspos = i
		}

		betafreq := q.freq[i] >> betashift
		q.freq[i] -= betafreq
		q.bias[i] += betafreq << gammashift
	}

	q.freq[bestpos] += beta
	q.bias[bestpos] -= betagamma
	return bestbiaspos
}

func (q *Quantizer) alterSingle(alpha, i, b, g, r int32) {
	q.network[0][i] -= (alpha * (q.network[0][i] - b)) / initalpha
	q.network[1][i] -= (alpha * (q.network[1][i] - g)) / initalpha
	q.network[2][i] -= (alpha * (q.network[2][i] - r)) / initalpha
}

func (q *Quantizer) alterNeighbor(rad, i, b, g, r int32) {
	lo := i - rad
	if lo < -1 {
		lo = -1
	}
	hi := i + rad
	if hi > int32(q.n) {
		hi = int32(q.n)
	}

	j := i + 1
	k := i - 1
	m := int32(1)
	for j < hi || k > lo {
		a := q.radpower[m]
		m++

		if j < hi {
			p := j
			j++
			q.network[0][p] -= (a * (q.network[0][p] - b)) / alpharadbias
			q.network[1][p] -= (a * (q.network[1][p] - g)) / alpharadbias
			q.network[2][p] -= (a * (q.network[2][p] - r)) / alpharadbias
		}
		if k > lo {
			p := k
			k--
			q.network[0][p] -= (a * (q.network[0][p] - b)) / alpharadbias
			q.network[1][p] -= (a * (q.network[1][p] - g)) / alpharadbias
			q.network[2][p] -= (a * (q.network[2][p] - r)) / alpharadbias
		}
	}
}

// Unbias removes the fixed-point bias from every neuron's color and
// records each neuron's pre-sort position as its original index. Call
// once, after Learn and before BuildIndex.
func (q *Quantizer) Unbias() {
	for i := 0; i < q.n; i++ {
		q.network[0][i] >>= netbiasshift
		q.network[1][i] >>= netbiasshift
		q.network[2][i] >>= netbiasshift
		q.network[3][i] = int32(i)
	}
}

// BuildIndex sorts the network by green value and builds the
// green-value secondary index used by Map. Call once, after Unbias.
func (q *Quantizer) BuildIndex() {
	previouscol := int32(0)
	startpos := int32(0)

	for i := 0; i < q.n; i++ {
		smallpos := i
		smallval := q.network[1][i]
		for j := i + 1; j < q.n; j++ {
			if q.network[1][j] < smallval {
				smallpos = j
				smallval = q.network[1][j]
			}
		}
		if smallpos != i {
			for k := range q.network {
				q.network[k][i], q.network[k][smallpos] = q.network[k][smallpos], q.network[k][i]
			}
		}

		if smallval != previouscol {
			q.netindex[previouscol] = (startpos + int32(i)) >> 1
			for g := previouscol + 1; g < smallval; g++ {
				q.netindex[g] = int32(i)
			}
			previouscol = smallval
			startpos = int32(i)
		}
	}

	maxval := int32(q.n - 1)
	for g := previouscol; g <= 255; g++ {
		q.netindex[g] = maxval
	}
}

// Map returns the original index of the neuron nearest (b,g,r), walking
// outward from the green-sorted secondary index in both directions.
func (q *Quantizer) Map(b, g, r int) int {
	if q.n == 0 {
		return -1
	}

	gc := int32(g)
	if gc > 255 {
		gc = 255
	} else if gc < 0 {
		gc = 0
	}
	bb, rr := int32(b), int32(r)

	best := int32(1 << 30)
	bestpos := int32(-1)
	n := int32(q.n)

	i := q.netindex[gc]
	j := i - 1
	for i < n || j >= 0 {
		if i < n {
			idx := i
			dist := q.network[1][idx] - gc
			if dist >= best {
				i = n
			} else {
				i++
				if dist < 0 {
					dist = -dist
				}
				a := q.network[0][idx] - bb
				if a < 0 {
					a = -a
				}
				dist += a
				if dist < best {
					a = q.network[2][idx] - rr
					if a < 0 {
						a = -a
					}
					dist += a
					if dist < best {
						best = dist
						bestpos = q.network[3][idx]
					}
				}
			}
		}
		if j >= 0 {
			idx := j
			dist := gc - q.network[1][idx]
			if dist >= best {
				j = -1
			} else {
				j--
				if dist < 0 {
					dist = -dist
				}
				a := q.network[0][idx] - bb
				if a < 0 {
					a = -a
				}
				dist += a
				if dist < best {
					a = q.network[2][idx] - rr
					if a < 0 {
						a = -a
					}
					dist += a
					if dist < best {
						best = dist
						bestpos = q.network[3][idx]
					}
				}
			}
		}
	}
	return int(bestpos)
}

// ColorAt returns the BGR color of the neuron whose original index
// (as returned by Map) is origIndex.
func (q *Quantizer) ColorAt(origIndex int) (b, g, r byte) {
	target := int32(origIndex)
	for k := 0; k < q.n; k++ {
		if q.network[3][k] == target {
			return clampByte(q.network[0][k]), clampByte(q.network[1][k]), clampByte(q.network[2][k])
		}
	}
	return 0, 0, 0
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
