// Package drift compares price distributions between a reference window
// and a current window, and summarizes model error against naive baselines.
package drift

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"milkcast/internal/domain"
	"milkcast/internal/model"
)

// Score kinds.
const (
	KindPSI = "psi"
	KindTVD = "tvd"
)

// Options tunes data drift detection.
type Options struct {
	// Bins is the number of reference quantile bins for numeric columns.
	Bins int
	// PSIThreshold marks a numeric column drifted when PSI >= it.
	PSIThreshold float64
	// TVDThreshold marks a categorical column drifted when the total
	// variation distance >= it.
	TVDThreshold float64
	// ShareThreshold marks the dataset drifted when the share of drifted
	// columns >= it.
	ShareThreshold float64
}

// DefaultOptions returns the thresholds used when none are configured.
func DefaultOptions() Options {
	return Options{Bins: 10, PSIThreshold: 0.1, TVDThreshold: 0.1, ShareThreshold: 0.5}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Bins <= 1 {
		o.Bins = d.Bins
	}
	if o.PSIThreshold <= 0 {
		o.PSIThreshold = d.PSIThreshold
	}
	if o.TVDThreshold <= 0 {
		o.TVDThreshold = d.TVDThreshold
	}
	if o.ShareThreshold <= 0 {
		o.ShareThreshold = d.ShareThreshold
	}
	return o
}

// ColumnDrift is the drift verdict for one column.
type ColumnDrift struct {
	Column    string  `json:"column"`
	Kind      string  `json:"kind"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Drifted   bool    `json:"drifted"`
}

// DataReport is the outcome of Compare.
type DataReport struct {
	ReferenceRows int           `json:"reference_rows"`
	CurrentRows   int           `json:"current_rows"`
	Columns       []ColumnDrift `json:"columns"`
	DriftedShare  float64       `json:"drifted_share"`
	Drifted       bool          `json:"drifted"`
}

// DriftedColumns lists the names of drifted columns.
func (r *DataReport) DriftedColumns() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Drifted {
			out = append(out, c.Column)
		}
	}
	return out
}

// Compare scores the price column with PSI and every entity column with
// total variation distance. Either window being empty is
// domain.ErrInsufficientData.
func Compare(reference, current []domain.PriceRecord, opts Options) (*DataReport, error) {
	opts = opts.withDefaults()
	if len(reference) == 0 || len(current) == 0 {
		return nil, fmt.Errorf("%w: reference has %d rows, current has %d",
			domain.ErrInsufficientData, len(reference), len(current))
	}

	rep := &DataReport{ReferenceRows: len(reference), CurrentRows: len(current)}

	refPrices, curPrices := prices(reference), prices(current)
	if len(refPrices) > 0 && len(curPrices) > 0 {
		score := PSI(refPrices, curPrices, opts.Bins)
		rep.Columns = append(rep.Columns, ColumnDrift{
			Column: "price", Kind: KindPSI, Score: score,
			Threshold: opts.PSIThreshold, Drifted: score >= opts.PSIThreshold,
		})
	}
	for _, col := range domain.GroupColumns {
		score := TVD(values(reference, col), values(current, col))
		rep.Columns = append(rep.Columns, ColumnDrift{
			Column: col, Kind: KindTVD, Score: score,
			Threshold: opts.TVDThreshold, Drifted: score >= opts.TVDThreshold,
		})
	}

	drifted := len(rep.DriftedColumns())
	rep.DriftedShare = float64(drifted) / float64(len(rep.Columns))
	rep.Drifted = rep.DriftedShare >= opts.ShareThreshold
	return rep, nil
}

func prices(recs []domain.PriceRecord) []float64 {
	out := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Price != nil {
			out = append(out, *r.Price)
		}
	}
	return out
}

func values(recs []domain.PriceRecord, col string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r.Column(col)
	}
	return out
}

// psiFloor stands in for empty bins so the log term stays finite.
const psiFloor = 1e-4

// PSI is the population stability index of current against reference,
// using empirical reference quantiles as bin edges.
func PSI(reference, current []float64, bins int) float64 {
	ref := append([]float64(nil), reference...)
	sort.Float64s(ref)
	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		edges = append(edges, stat.Quantile(float64(i)/float64(bins), stat.Empirical, ref, nil))
	}

	refShare := histogram(reference, edges)
	curShare := histogram(current, edges)
	var psi float64
	for i := range refShare {
		r := math.Max(refShare[i], psiFloor)
		c := math.Max(curShare[i], psiFloor)
		psi += (c - r) * math.Log(c/r)
	}
	return psi
}

func histogram(xs []float64, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, x := range xs {
		i := sort.Search(len(edges), func(i int) bool { return x < edges[i] })
		counts[i]++
	}
	for i := range counts {
		counts[i] /= float64(len(xs))
	}
	return counts
}

// TVD is the total variation distance between the category frequencies of
// two samples: half the L1 distance, in [0, 1].
func TVD(reference, current []string) float64 {
	refFreq := frequencies(reference)
	curFreq := frequencies(current)
	var sum float64
	for k, p := range refFreq {
		sum += math.Abs(p - curFreq[k])
	}
	for k, q := range curFreq {
		if _, ok := refFreq[k]; !ok {
			sum += q
		}
	}
	return sum / 2
}

func frequencies(xs []string) map[string]float64 {
	out := make(map[string]float64)
	for _, x := range xs {
		out[x]++
	}
	for k := range out {
		out[k] /= float64(len(xs))
	}
	return out
}

// ModelReport summarizes regression error on the validation month.
type ModelReport struct {
	Samples   int     `json:"samples"`
	MeanError float64 `json:"mean_error"`
	RMSE      float64 `json:"rmse"`
	// DummyMAE is the MAE of always predicting the target median.
	DummyMAE float64 `json:"dummy_mae"`
	// DummyRMSE is the RMSE of always predicting the target mean.
	DummyRMSE float64 `json:"dummy_rmse"`
}

// BeatsDummy reports whether the model's RMSE is below the mean baseline.
func (r *ModelReport) BeatsDummy() bool {
	return r.RMSE < r.DummyRMSE
}

// EvaluateModel compares predictions with actual targets.
func EvaluateModel(actual, pred []float64) (*ModelReport, error) {
	if len(actual) != len(pred) {
		return nil, fmt.Errorf("%d targets but %d predictions", len(actual), len(pred))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("%w: no validation samples", domain.ErrInsufficientData)
	}

	mean := stat.Mean(actual, nil)
	sorted := append([]float64(nil), actual...)
	sort.Float64s(sorted)
	// Any point between the two middle values minimizes absolute error.
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	meanPred := make([]float64, len(actual))
	medianPred := make([]float64, len(actual))
	for i := range actual {
		meanPred[i], medianPred[i] = mean, median
	}
	return &ModelReport{
		Samples:   len(actual),
		MeanError: model.MeanError(actual, pred),
		RMSE:      model.RMSE(actual, pred),
		DummyMAE:  model.MAE(actual, medianPred),
		DummyRMSE: model.RMSE(actual, meanPred),
	}, nil
}
