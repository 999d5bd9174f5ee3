// Package indicators computes the ContextBuilder's (C6) live indicator set
// from a run of OHLC bars. RSI, SMA, and Bollinger band width are computed
// with cinar/indicator/v2; ADX and ATR are computed manually the same way
// the teacher's MCP-exposed ADX tool did, since cinar/indicator/v2 has no
// ADX or ATR implementation of its own.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/yusuke746/trading-system/internal/model"
)

// Bar is one OHLC bar; Compute expects bars oldest-first.
type Bar struct {
	High, Low, Close float64
}

// squeezeThresholdPct is the Bollinger band width, as a percentage of the
// middle band, below which the market is considered to be in a volatility
// squeeze.
const squeezeThresholdPct = 1.5

const defaultPeriod = 14
const smaPeriod = 20
const bollingerPeriod = 20

// Compute derives a LiveIndicatorSet from a bar history. It requires at
// least 2*defaultPeriod bars to produce a meaningful ADX/ATR trend
// reading; with fewer, it returns whatever subset of fields it can still
// compute and leaves the rest nil.
func Compute(bars []Bar) (model.LiveIndicatorSet, error) {
	if len(bars) == 0 {
		return model.LiveIndicatorSet{}, fmt.Errorf("indicators: no bars supplied")
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	set := model.LiveIndicatorSet{}
	price := closes[len(closes)-1]
	set.Price = &price

	if rsi, err := rsiLatest(closes); err == nil {
		set.RSI = &rsi
	}

	if sma, err := smaLatest(closes); err == nil {
		set.SMA20 = &sma
	}

	if width, err := bollingerWidthLatest(closes); err == nil {
		squeeze := width < squeezeThresholdPct
		set.Squeeze = &squeeze
	}

	if len(closes) >= defaultPeriod*2 {
		adxSeries := adxSeries(highs, lows, closes, defaultPeriod)
		if n := len(adxSeries); n >= 2 {
			adx := adxSeries[n-1]
			rising := adxSeries[n-1] > adxSeries[n-2]
			set.ADX = &adx
			set.ADXRising = &rising
		}

		atrSeries := atrSeries(highs, lows, closes, defaultPeriod)
		if n := len(atrSeries); n >= 2 {
			expanding := atrSeries[n-1] > atrSeries[n-2]
			atr := atrSeries[n-1]
			set.ATR = &atr
			set.ATRExpanding = &expanding
		}
	}

	return set, nil
}

func rsiLatest(closes []float64) (float64, error) {
	if len(closes) < defaultPeriod+1 {
		return 0, fmt.Errorf("insufficient data for RSI: need %d, got %d", defaultPeriod+1, len(closes))
	}

	ch := toChannel(closes)
	rsiChan := momentum.NewRsiWithPeriod[float64](defaultPeriod).Compute(ch)

	var values []float64
	for v := range rsiChan {
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no RSI values computed")
	}
	return values[len(values)-1], nil
}

func smaLatest(closes []float64) (float64, error) {
	if len(closes) < smaPeriod {
		return 0, fmt.Errorf("insufficient data for SMA: need %d, got %d", smaPeriod, len(closes))
	}

	ch := toChannel(closes)
	smaChan := trend.NewSmaWithPeriod[float64](smaPeriod).Compute(ch)

	var values []float64
	for v := range smaChan {
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no SMA values computed")
	}
	return values[len(values)-1], nil
}

func bollingerWidthLatest(closes []float64) (float64, error) {
	if len(closes) < bollingerPeriod {
		return 0, fmt.Errorf("insufficient data for Bollinger bands: need %d, got %d", bollingerPeriod, len(closes))
	}

	ch := toChannel(closes)
	lowerChan, middleChan, upperChan := volatility.NewBollingerBandsWithPeriod[float64](bollingerPeriod).Compute(ch)

	var lower, middle, upper []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}
	if len(middle) == 0 || middle[len(middle)-1] == 0 {
		return 0, fmt.Errorf("no Bollinger band values computed")
	}

	n := len(middle) - 1
	return (upper[n] - lower[n]) / middle[n] * 100, nil
}

func toChannel(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// adxSeries and atrSeries are manual implementations: cinar/indicator/v2
// has neither. Both follow Wilder's smoothing over the true range.
func adxSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	if n < period*2 {
		return nil
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], close[i-1])

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]
		diSum := plusDI + minusDI
		if diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
		}
	}

	return smoothWilder(dx, period)
}

func atrSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	if n < period*2 {
		return nil
	}

	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], close[i-1])
	}
	return smoothWilder(tr, period)
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return result
}
