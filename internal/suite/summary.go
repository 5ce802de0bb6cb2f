package suite

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fxnlabs/perfsuite/internal/kernel"
)

// Summary is a finished run in the form reports and the store consume.
type Summary struct {
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
	NPasses  int             `json:"npasses"`
	Failures int             `json:"failures"`
	Kernels  []KernelSummary `json:"kernels"`
}

// KernelSummary is one kernel's workload description and results.
type KernelSummary struct {
	Name          string   `json:"name"`
	Group         string   `json:"group"`
	ProblemSize   int      `json:"problemSize"`
	Reps          int      `json:"reps"`
	ItsPerRep     int64    `json:"itsPerRep"`
	KernelsPerRep int64    `json:"kernelsPerRep"`
	BytesPerRep   int64    `json:"bytesPerRep"`
	FLOPsPerRep   int64    `json:"flopsPerRep"`
	Features      []string `json:"features"`
	Rows          []Row    `json:"rows"`
	// Reference names the row checksums were compared with, empty when no
	// row completed.
	Reference string `json:"reference,omitempty"`
	Valid     bool   `json:"valid"`
}

// Row is one (variant, tuning) of a kernel.
type Row struct {
	Variant      string          `json:"variant"`
	Tuning       string          `json:"tuning"`
	TuningIndex  int             `json:"tuningIndex"`
	Status       kernel.Status   `json:"status"`
	Error        string          `json:"error,omitempty"`
	Checksum     float64         `json:"checksum"`
	RelativeDiff float64         `json:"relativeDiff"`
	Passed       bool            `json:"passed"`
	Times        []time.Duration `json:"times"`
	MinTime      time.Duration   `json:"minTime"`
	AvgTime      time.Duration   `json:"avgTime"`
	MaxTime      time.Duration   `json:"maxTime"`
	// StdDev is the standard deviation of the pass times in seconds.
	StdDev float64 `json:"stdDev"`
}

// Bandwidth returns bytes moved per second at the mean pass time.
func (k KernelSummary) Bandwidth(r Row) float64 {
	return perSecond(k.BytesPerRep, k.Reps, r.AvgTime)
}

// FLOPRate returns floating point operations per second at the mean pass
// time.
func (k KernelSummary) FLOPRate(r Row) float64 {
	return perSecond(k.FLOPsPerRep, k.Reps, r.AvgTime)
}

func perSecond(perRep int64, reps int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(perRep) * float64(reps) / d.Seconds()
}

// Summarize builds the summary of k's results table.
func Summarize(k kernel.Kernel, v Validation) KernelSummary {
	b := k.Base()
	ks := KernelSummary{
		Name:          b.Name(),
		Group:         b.Group(),
		ProblemSize:   b.ActualProblemSize(),
		Reps:          b.RunReps(),
		ItsPerRep:     b.ItsPerRep(),
		KernelsPerRep: b.KernelsPerRep(),
		BytesPerRep:   b.BytesPerRep(),
		FLOPsPerRep:   b.FLOPsPerRep(),
		Valid:         v.Passed,
	}
	for _, f := range b.Features().List() {
		ks.Features = append(ks.Features, f.String())
	}
	for _, res := range b.Results().Rows() {
		key := kernel.Key{Variant: res.Variant, Tuning: res.Tuning}
		check := v.Checks[key]
		row := Row{
			Variant:      res.Variant.String(),
			Tuning:       res.TuningName,
			TuningIndex:  res.Tuning,
			Status:       res.Status,
			Error:        res.Err,
			Checksum:     res.MeanChecksum(),
			RelativeDiff: check.RelativeDiff,
			Passed:       check.Passed,
			Times:        res.Times,
			MinTime:      res.MinTime(),
			AvgTime:      res.AvgTime(),
			MaxTime:      res.MaxTime(),
		}
		if len(res.Times) > 1 {
			secs := make([]float64, len(res.Times))
			for i, t := range res.Times {
				secs[i] = t.Seconds()
			}
			row.StdDev = stat.StdDev(secs, nil)
		}
		if v.HasReference && key == v.Reference {
			ks.Reference = row.Variant + " " + row.Tuning
		}
		ks.Rows = append(ks.Rows, row)
	}
	return ks
}
