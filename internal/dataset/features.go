package dataset

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"milkcast/internal/domain"
	"milkcast/internal/model"
)

const rollingWindow = 7

// applyFeatures fills lag and rolling mean for one group sorted by date.
// A group coarser than the entity key can hold several rows per date, so
// history is kept per distinct date as that date's mean price. The lag is
// the latest strictly earlier date; the rolling mean covers the row itself
// and up to six earlier dates. Rows on the same date never see each other.
func applyFeatures(group []Row) {
	var history []float64 // one mean price per earlier date, oldest first
	for lo := 0; lo < len(group); {
		hi := lo + 1
		for hi < len(group) && group[hi].Date.Equal(group[lo].Date) {
			hi++
		}
		window := history
		if len(window) > rollingWindow-1 {
			window = window[len(window)-(rollingWindow-1):]
		}
		prior := floats.Sum(window)
		sameDay := make([]float64, 0, hi-lo)
		for i := lo; i < hi; i++ {
			if len(history) > 0 {
				group[i].PriceLag1 = domain.Float(history[len(history)-1])
			}
			group[i].PriceMean7 = (prior + group[i].Price) / float64(len(window)+1)
			sameDay = append(sameDay, group[i].Price)
		}
		history = append(history, stat.Mean(sameDay, nil))
		lo = hi
	}
}

// Input converts a row to the serving contract. A missing lag is reported
// as zero; training drops such rows.
func (r Row) Input() model.Input {
	in := model.Input{
		State:      r.State,
		City:       r.City,
		MilkType:   string(r.MilkType),
		Channel:    r.Channel,
		Day:        r.Day,
		Month:      r.Month,
		Year:       r.Year,
		Weekday:    model.Weekday(r.Weekday),
		PriceMean7: r.PriceMean7,
	}
	if r.PriceLag1 != nil {
		in.PriceLag1 = *r.PriceLag1
	}
	return in
}

// TrainingSet returns feature vectors and targets for every row that has a
// lag, in dataset order.
func (ds *Dataset) TrainingSet() ([]model.FeatureVector, []float64) {
	var (
		xs []model.FeatureVector
		ys []float64
	)
	for _, r := range ds.Rows {
		if r.PriceLag1 == nil {
			continue
		}
		xs = append(xs, r.Input().Vector())
		ys = append(ys, r.Price)
	}
	return xs, ys
}

// NextDayFeatures builds one serving input per entity group for target,
// using only observations dated strictly before target: the lag is the
// latest price and the mean covers the latest seven. Groups with no earlier
// observation are omitted. Output is ordered by entity key.
func NextDayFeatures(ds *Dataset, target time.Time) []model.Input {
	target = domain.Day(target)
	byKey := make(map[domain.EntityKey][]Row)
	for _, r := range ds.Rows {
		if !r.Date.Before(target) {
			continue
		}
		byKey[r.Key()] = append(byKey[r.Key()], r)
	}

	keys := make([]domain.EntityKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	out := make([]model.Input, 0, len(keys))
	for _, k := range keys {
		hist := byKey[k]
		sort.SliceStable(hist, func(i, j int) bool { return hist[i].Date.Before(hist[j].Date) })

		tail := hist
		if len(tail) > rollingWindow {
			tail = tail[len(tail)-rollingWindow:]
		}
		tailPrices := make([]float64, len(tail))
		for i, r := range tail {
			tailPrices[i] = r.Price
		}
		out = append(out, model.Input{
			State:      k.State,
			City:       k.City,
			MilkType:   string(k.MilkType),
			Channel:    k.Channel,
			Day:        target.Day(),
			Month:      int(target.Month()),
			Year:       target.Year(),
			Weekday:    model.Weekday(MondayWeekday(target)),
			PriceLag1:  hist[len(hist)-1].Price,
			PriceMean7: stat.Mean(tailPrices, nil),
		})
	}
	return out
}
