// Package filter applies the pipeline's temporal filters: the motion
// parameter filter run before framewise displacement is computed, and the
// Butterworth bandpass applied to detrended BOLD and confound columns.
//
// All filters are applied zero-phase (forward, then backward over the
// reversed signal) so that filtering never shifts events in time relative to
// the temporal mask.
package filter

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// zeroPhase runs a biquad cascade forward and backward over x and returns
// the filtered copy. The signal is extended at both ends by odd reflection
// before filtering to suppress edge transients; the extensions are discarded
// afterwards.
func zeroPhase(sections []biquad.Coefficients, x []float64) []float64 {
	n := len(x)
	if n == 0 || len(sections) == 0 {
		out := make([]float64, n)
		copy(out, x)
		return out
	}

	padlen := 3 * (2*len(sections) + 1)
	if padlen > n-1 {
		padlen = n - 1
	}

	buf := make([]float64, padlen+n+padlen)
	for i := 0; i < padlen; i++ {
		// odd reflection about the first and last samples
		buf[i] = 2*x[0] - x[padlen-i]
		buf[padlen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(buf[padlen:], x)

	chain := biquad.NewChain(sections)
	chain.ProcessBlock(buf)

	reverse(buf)
	chain.Reset()
	chain.ProcessBlock(buf)
	reverse(buf)

	out := make([]float64, n)
	copy(out, buf[padlen:padlen+n])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
