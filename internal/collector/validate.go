package collector

import (
	"fmt"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// validateCandles drops structurally-bad candle rows: inverted high/low,
// open or close outside the [low, high] band, negative volume, or a
// timestamp off the timeframe's grid. Surviving rows are returned; the
// ValidationResult carries the rejection count for the >10%-of-batch
// alert rule.
func validateCandles(candles []storage.Candle) ([]storage.Candle, ValidationResult) {
	var vr ValidationResult
	out := make([]storage.Candle, 0, len(candles))
	for _, c := range candles {
		period := c.Timeframe.PeriodSeconds()
		switch {
		case c.TimestampUnix <= 0:
			vr.reject(fmt.Sprintf("candle %s/%s: non-positive timestamp %d", c.PoolID, c.Timeframe, c.TimestampUnix))
		case period > 0 && c.TimestampUnix%period != 0:
			vr.reject(fmt.Sprintf("candle %s/%s@%d: timestamp off the %ds grid", c.PoolID, c.Timeframe, c.TimestampUnix, period))
		case c.High < c.Low:
			vr.reject(fmt.Sprintf("candle %s/%s@%d: high %g < low %g", c.PoolID, c.Timeframe, c.TimestampUnix, c.High, c.Low))
		case c.Open < c.Low || c.Open > c.High:
			vr.reject(fmt.Sprintf("candle %s/%s@%d: open %g outside [%g, %g]", c.PoolID, c.Timeframe, c.TimestampUnix, c.Open, c.Low, c.High))
		case c.Close < c.Low || c.Close > c.High:
			vr.reject(fmt.Sprintf("candle %s/%s@%d: close %g outside [%g, %g]", c.PoolID, c.Timeframe, c.TimestampUnix, c.Close, c.Low, c.High))
		case c.VolumeUSD < 0:
			vr.reject(fmt.Sprintf("candle %s/%s@%d: negative volume %g", c.PoolID, c.Timeframe, c.TimestampUnix, c.VolumeUSD))
		default:
			vr.Valid++
			out = append(out, c)
		}
	}
	return out, vr
}

// validateTrades drops rows missing an id, carrying an unknown side, or
// falling under the configured volume floor.
func validateTrades(trades []storage.Trade, minVolumeUSD float64) ([]storage.Trade, ValidationResult) {
	var vr ValidationResult
	out := make([]storage.Trade, 0, len(trades))
	for _, t := range trades {
		switch {
		case t.ID == "":
			vr.reject(fmt.Sprintf("trade on %s: empty id", t.PoolID))
		case t.Side != storage.SideBuy && t.Side != storage.SideSell:
			vr.reject(fmt.Sprintf("trade %s: unknown side %q", t.ID, t.Side))
		case t.VolumeUSD < minVolumeUSD:
			vr.reject(fmt.Sprintf("trade %s: volume %g under floor %g", t.ID, t.VolumeUSD, minVolumeUSD))
		default:
			vr.Valid++
			out = append(out, t)
		}
	}
	return out, vr
}

// validatePools drops upstream pool entries missing the identifiers a row
// cannot be stored without.
func validatePools(pools []geckoterminal.PoolDTO) ([]geckoterminal.PoolDTO, ValidationResult) {
	var vr ValidationResult
	out := make([]geckoterminal.PoolDTO, 0, len(pools))
	for _, p := range pools {
		switch {
		case p.ID == "":
			vr.reject(fmt.Sprintf("pool %q: empty id", p.Name))
		case p.Address == "":
			vr.reject(fmt.Sprintf("pool %s: empty address", p.ID))
		default:
			vr.Valid++
			out = append(out, p)
		}
	}
	return out, vr
}

// noValidation is embedded by collectors whose payloads have no structural
// checks beyond what the upstream decoder already enforces.
type noValidation struct{}

func (noValidation) Validate(any) ValidationResult { return ValidationResult{} }
