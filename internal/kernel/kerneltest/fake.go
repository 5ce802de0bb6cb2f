package kerneltest

import (
	"sync/atomic"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Fake is a kernel that does no work. Host variants have one tuning and
// device variants one per block size. Each pass adds Checksums[vid], or 1
// when absent, and any phase listed in Fail returns that error.
type Fake struct {
	kernel.KernelBase

	Checksums map[variant.ID]float64
	Fail      map[kernel.Phase]error
	// Untimed makes tunings return without calling Repeat.
	Untimed bool

	tuningCalls atomic.Int64
	setUps      atomic.Int64
	tearDowns   atomic.Int64
}

// NewFake returns Group_name defining vids.
func NewFake(env *kernel.Env, group, name string, vids ...variant.ID) *Fake {
	k := &Fake{
		KernelBase: kernel.NewBase(env, group, name, 100, 10),
		Checksums:  make(map[variant.ID]float64),
		Fail:       make(map[kernel.Phase]error),
	}
	k.SetItsPerRep(int64(k.ActualProblemSize()))
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(16 * int64(k.ActualProblemSize()))
	k.SetFLOPsPerRep(int64(k.ActualProblemSize()))
	k.SetUsesFeature(variant.Forall)
	k.SetVariantsDefined(vids...)
	return k
}

// TuningCalls counts the calls to Tunings.
func (k *Fake) TuningCalls() int { return int(k.tuningCalls.Load()) }

// SetUps counts the successful calls to SetUp.
func (k *Fake) SetUps() int { return int(k.setUps.Load()) }

// TearDowns counts the calls to TearDown.
func (k *Fake) TearDowns() int { return int(k.tearDowns.Load()) }

func (k *Fake) Tunings(vid variant.ID) []kernel.Tuning {
	k.tuningCalls.Add(1)
	run := func(r *kernel.Run) error {
		if k.Untimed {
			return nil
		}
		return r.Repeat(func(int) error { return k.Fail[kernel.PhaseRun] })
	}
	if !vid.IsGPU() {
		return kernel.Default(run)
	}
	return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
		return []kernel.Tuning{{Name: kernel.BlockName(bs), BlockSize: bs, Run: run}}
	})
}

func (k *Fake) SetUp(variant.ID, int) error {
	if err := k.Fail[kernel.PhaseSetUp]; err != nil {
		return err
	}
	k.setUps.Add(1)
	return nil
}

func (k *Fake) UpdateChecksum(vid variant.ID, tune int) error {
	if err := k.Fail[kernel.PhaseChecksum]; err != nil {
		return err
	}
	v, ok := k.Checksums[vid]
	if !ok {
		v = 1
	}
	k.AddChecksum(vid, tune, v)
	return nil
}

func (k *Fake) TearDown(variant.ID, int) error {
	k.tearDowns.Add(1)
	return k.Fail[kernel.PhaseTearDown]
}
