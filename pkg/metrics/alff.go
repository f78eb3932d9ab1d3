// Package metrics derives resting-state summary maps from the denoised
// signal: the amplitude of low-frequency fluctuation (ALFF) and regional
// homogeneity (ReHo).
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"boldpost/internal/models"
)

// ALFF computes the amplitude of low-frequency fluctuation for every column
// of the denoised, interpolated T x V matrix.
//
// Each column is z-scored over time, a power spectrum is estimated, and ALFF
// is twice the mean square-root power inside the band retained by the
// bandpass filter, rescaled by the pre-z-score standard deviation to restore
// original units.
//
// The spectral estimator is chosen once per run and recorded in the returned
// SpectralEstimate: a regular-grid periodogram when no frames were censored,
// or Lomb-Scargle over the valid frames' acquisition times when
// interpolation occurred, since interpolation changes the practical sampling
// regularity.
//
// ALFF is undefined without a bandpass band; callers must skip it when
// filtering is disabled.
func ALFF(data *mat.Dense, mask *models.TemporalMask, lowPass, highPass, tr float64) ([]float64, *models.SpectralEstimate, error) {
	t, v := data.Dims()
	if err := mask.CheckAligned(t, "denoised matrix"); err != nil {
		return nil, nil, err
	}
	if lowPass <= 0 || highPass <= 0 || highPass >= lowPass {
		return nil, nil, fmt.Errorf("ALFF requires a bandpass band, got high %g Hz and low %g Hz", highPass, lowPass)
	}
	if t < 4 {
		return nil, nil, fmt.Errorf("too few frames (%d) for spectral estimation", t)
	}

	fs := 1.0 / tr
	censored := mask.HasOutliers()

	var freqs []float64
	method := models.SpectralPeriodogram
	if censored {
		method = models.SpectralLombScargle
		freqs = lombScargleGrid(t, fs)
	} else {
		freqs = periodogramGrid(t, fs)
	}

	// Band edges: indices of the grid frequencies closest to each cutoff.
	// The band is [high-pass edge, low-pass edge).
	lo := nearestIndex(freqs, highPass)
	hi := nearestIndex(freqs, lowPass)
	if lo >= hi {
		return nil, nil, fmt.Errorf("bandpass band [%g, %g] Hz resolves to an empty frequency range", highPass, lowPass)
	}

	validIdx := mask.ValidIndices()
	times := make([]float64, len(validIdx))
	for i, idx := range validIdx {
		times[i] = float64(idx) * tr
	}

	var fft *fourier.FFT
	if !censored {
		fft = fourier.NewFFT(t)
	}

	alff := make([]float64, v)
	meanPower := make([]float64, len(freqs))
	col := make([]float64, t)
	for j := 0; j < v; j++ {
		mat.Col(col, j, data)

		mean := stat.Mean(col, nil)
		sd := popStdDev(col, mean)
		z := make([]float64, t)
		if sd > 0 {
			for i, x := range col {
				z[i] = (x - mean) / sd
			}
		}

		var power []float64
		if censored {
			y := make([]float64, len(validIdx))
			for i, idx := range validIdx {
				y[i] = z[idx]
			}
			power = lombScargle(times, y, freqs)
		} else {
			power = periodogram(fft, z, t)
		}

		sum := 0.0
		for k := lo; k < hi; k++ {
			sum += math.Sqrt(power[k])
		}
		alff[j] = 2.0 * sum / float64(hi-lo) * sd

		for k, p := range power {
			meanPower[k] += p / float64(v)
		}
	}

	estimate := &models.SpectralEstimate{
		Frequencies: freqs,
		Power:       meanPower,
		Method:      method,
	}
	return alff, estimate, nil
}

// periodogramGrid returns the one-sided FFT frequency bins k*fs/T for
// k = 0..T/2.
func periodogramGrid(t int, fs float64) []float64 {
	n := t/2 + 1
	freqs := make([]float64, n)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(t)
	}
	return freqs
}

// lombScargleGrid returns T/2 evenly spaced frequencies over (0, Nyquist],
// skipping zero since Lomb-Scargle is undefined there.
func lombScargleGrid(t int, fs float64) []float64 {
	n := t / 2
	freqs := make([]float64, n)
	for k := 1; k <= n; k++ {
		freqs[k-1] = 0.5 * fs * float64(k) / float64(n)
	}
	return freqs
}

// periodogram estimates the one-sided power spectrum of x with
// power scaling: |X_k|^2 / T^2, doubled at interior bins.
func periodogram(fft *fourier.FFT, x []float64, t int) []float64 {
	coeffs := fft.Coefficients(nil, x)
	power := make([]float64, len(coeffs))
	tf := float64(t)
	for k, c := range coeffs {
		p := (real(c)*real(c) + imag(c)*imag(c)) / (tf * tf)
		if k > 0 && k < len(coeffs)-1 {
			p *= 2
		}
		power[k] = p
	}
	return power
}

// lombScargle evaluates the classic normalized Lomb-Scargle periodogram of
// the unevenly sampled series (times, y) at the given frequencies in Hz.
func lombScargle(times, y, freqs []float64) []float64 {
	power := make([]float64, len(freqs))

	yy := 0.0
	for _, v := range y {
		yy += v * v
	}
	if yy == 0 {
		return power
	}

	for k, f := range freqs {
		omega := 2 * math.Pi * f

		var s2, c2 float64
		for _, tm := range times {
			s2 += math.Sin(2 * omega * tm)
			c2 += math.Cos(2 * omega * tm)
		}
		tau := math.Atan2(s2, c2) / (2 * omega)

		var cy, sy, cc, ss float64
		for i, tm := range times {
			c := math.Cos(omega * (tm - tau))
			s := math.Sin(omega * (tm - tau))
			cy += y[i] * c
			sy += y[i] * s
			cc += c * c
			ss += s * s
		}

		p := 0.0
		if cc > 0 {
			p += cy * cy / cc
		}
		if ss > 0 {
			p += sy * sy / ss
		}
		// normalize by the residual sum of squares about zero
		power[k] = p / yy
	}
	return power
}

// nearestIndex returns the index of the value in a sorted slice closest to x.
func nearestIndex(sorted []float64, x float64) int {
	best := 0
	bestDiff := math.Abs(sorted[0] - x)
	for i, v := range sorted[1:] {
		if d := math.Abs(v - x); d < bestDiff {
			bestDiff = d
			best = i + 1
		}
	}
	return best
}

// popStdDev is the population standard deviation about the given mean.
func popStdDev(x []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range x {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}
