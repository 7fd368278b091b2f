package followup

import (
	"fmt"

	"github.com/ufmn/followup/internal/platform/table"
)

// KingsEndStage is the stage forced by the end-stage criteria.
const KingsEndStage = 4

// StagingInputs are the columns Derive reads.
var StagingInputs = []string{
	ColLenguaje, ColSalivacion, ColDeglucion, ColEscritura,
	ColCortarSinPEG, ColCortarConPEG, ColVestido, ColCama,
	ColCaminar, ColSubirEscaleras, ColDisnea, ColOrtopnea,
	ColInsufResp, ColPortadorPEG, ColIndicacionPEG,
}

// KingsDomains holds the nullable region flags of King's staging.
type KingsDomains struct {
	Bulbar    table.Value
	UpperLimb table.Value
	LowerLimb table.Value
	EndStage  table.Value
}

// EvaluateKings computes the King's region flags of one visit. A region is
// involved when any of its items scores strictly below 4.
func EvaluateKings(r table.Row) KingsDomains {
	return KingsDomains{
		Bulbar: anyOf(
			below(r.Get(ColLenguaje), 4),
			below(r.Get(ColSalivacion), 4),
			below(r.Get(ColDeglucion), 4),
		),
		UpperLimb: anyOf(
			below(r.Get(ColEscritura), 4),
			below(r.Get(ColCortarSinPEG), 4),
		),
		LowerLimb: below(r.Get(ColCaminar), 4),
		EndStage: anyOf(
			truthy(r.Get(ColIndicacionPEG)),
			equals(r.Get(ColDisnea), 0),
			below(r.Get(ColInsufResp), 4),
		),
	}
}

// Stage is 4 when the end-stage criteria hold; otherwise the number of
// involved regions, or null if any region is undetermined.
func (d KingsDomains) Stage() table.Value {
	if end, ok := d.EndStage.Bool(); ok && end {
		return table.Int(KingsEndStage)
	}
	return sumOf(d.Bulbar, d.UpperLimb, d.LowerLimb)
}

// MitosDomains holds the nullable functional-domain flags of MiToS staging.
type MitosDomains struct {
	WalkingSelfcare table.Value
	Swallowing      table.Value
	Communicating   table.Value
	Breathing       table.Value
}

// EvaluateMitos computes the MiToS domain flags of one visit. Thresholds
// are inclusive and differ per domain.
func EvaluateMitos(r table.Row) MitosDomains {
	return MitosDomains{
		WalkingSelfcare: anyOf(
			atMost(r.Get(ColCaminar), 1),
			atMost(r.Get(ColVestido), 1),
		),
		Swallowing: atMost(r.Get(ColDeglucion), 1),
		Communicating: anyOf(
			atMost(r.Get(ColLenguaje), 1),
			atMost(r.Get(ColEscritura), 1),
		),
		Breathing: anyOf(
			atMost(r.Get(ColDisnea), 1),
			atMost(r.Get(ColInsufResp), 2),
		),
	}
}

// Stage counts the affected domains; null if any domain is undetermined.
func (d MitosDomains) Stage() table.Value {
	return sumOf(d.WalkingSelfcare, d.Swallowing, d.Communicating, d.Breathing)
}

// ResolveCortar picks the cutting item variant matching the PEG carrier
// flag. A null flag selects the variant without PEG.
func ResolveCortar(r table.Row) table.Value {
	if peg, ok := r.Get(ColPortadorPEG).Bool(); ok && peg {
		return r.Get(ColCortarConPEG)
	}
	return r.Get(ColCortarSinPEG)
}

// Derive returns a copy of t with the cutting item resolved and the
// King's, MiToS and ALSFRS sub-scores computed for every row. Existing
// derived columns are recomputed. Item scores are not range-checked.
func Derive(t *table.Table) (*table.Table, error) {
	if err := t.Require(StagingInputs...); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}

	out := t.Clone()
	out.Derive(ColCortar, ResolveCortar)
	out.Derive(ColKingsC, func(r table.Row) table.Value { return EvaluateKings(r).Stage() })
	out.Derive(ColMitosC, func(r table.Row) table.Value { return EvaluateMitos(r).Stage() })
	out.Derive(ColALSFRSBulbarC, sumColumns(ALSFRSBulbarColumns))
	out.Derive(ColALSFRSMotorFC, sumColumns(ALSFRSMotorFColumns))
	out.Derive(ColALSFRSMotorGC, sumColumns(ALSFRSMotorGColumns))
	out.Derive(ColALSFRSRespC, sumColumns(ALSFRSRespColumns))
	out.Derive(ColALSFRSTotalC, sumColumns(ALSFRSTotalColumns))
	return out, nil
}

func sumColumns(cols []string) func(table.Row) table.Value {
	return func(r table.Row) table.Value {
		vals := make([]table.Value, len(cols))
		for i, c := range cols {
			vals[i] = r.Get(c)
		}
		return sumOf(vals...)
	}
}

// Three-valued helpers. A comparison against null is null.

func below(v table.Value, n float64) table.Value {
	f, ok := v.Float()
	if !ok {
		return table.Null()
	}
	return table.Bool(f < n)
}

func atMost(v table.Value, n float64) table.Value {
	f, ok := v.Float()
	if !ok {
		return table.Null()
	}
	return table.Bool(f <= n)
}

func equals(v table.Value, n float64) table.Value {
	f, ok := v.Float()
	if !ok {
		return table.Null()
	}
	return table.Bool(f == n)
}

func truthy(v table.Value) table.Value {
	if b, ok := v.Bool(); ok {
		return table.Bool(b)
	}
	if f, ok := v.Float(); ok {
		return table.Bool(f != 0)
	}
	return table.Null()
}

// anyOf is Kleene OR: true if any flag is true, else null if any is null.
func anyOf(flags ...table.Value) table.Value {
	unknown := false
	for _, f := range flags {
		b, ok := f.Bool()
		switch {
		case !ok:
			unknown = true
		case b:
			return table.Bool(true)
		}
	}
	if unknown {
		return table.Null()
	}
	return table.Bool(false)
}

// sumOf adds integer values (booleans count as 0/1). Any null makes the
// whole sum null.
func sumOf(vals ...table.Value) table.Value {
	var total int64
	for _, v := range vals {
		n, ok := v.Int()
		if !ok {
			return table.Null()
		}
		total += n
	}
	return table.Int(total)
}
