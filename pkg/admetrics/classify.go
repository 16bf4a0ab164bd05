package admetrics

import "fmt"

type KPI string

const (
	KPIROAS     KPI = "roas"
	KPICPA      KPI = "cpa"
	KPICTR      KPI = "ctr"
	KPICPC      KPI = "cpc"
	KPICPM      KPI = "cpm"
	KPIHoldRate KPI = "hold_rate"
)

type Direction string

const (
	// DirectionGTE means higher values are better.
	DirectionGTE Direction = "gte"
	// DirectionLTE means lower values are better.
	DirectionLTE Direction = "lte"
)

type Verdict string

const (
	VerdictScale             Verdict = "scale"
	VerdictWatch             Verdict = "watch"
	VerdictKill              Verdict = "kill"
	VerdictInsufficientSpend Verdict = "insufficient_spend"
)

// Thresholds is the per-account winner configuration.
type Thresholds struct {
	KPI            KPI       `json:"winner_kpi"`
	Direction      Direction `json:"kpi_direction"`
	ScaleThreshold float64   `json:"scale_threshold"`
	KillThreshold  float64   `json:"kill_threshold"`
	SpendThreshold float64   `json:"spend_threshold"`
}

func (t Thresholds) Validate() error {
	if _, err := t.KPI.Value(Metrics{}); err != nil {
		return err
	}
	switch t.Direction {
	case DirectionGTE:
		if t.ScaleThreshold < t.KillThreshold {
			return fmt.Errorf("scale threshold %.2f must be >= kill threshold %.2f for %s", t.ScaleThreshold, t.KillThreshold, t.Direction)
		}
	case DirectionLTE:
		if t.ScaleThreshold > t.KillThreshold {
			return fmt.Errorf("scale threshold %.2f must be <= kill threshold %.2f for %s", t.ScaleThreshold, t.KillThreshold, t.Direction)
		}
	default:
		return fmt.Errorf("unknown kpi direction %q", t.Direction)
	}
	if t.SpendThreshold < 0 {
		return fmt.Errorf("spend threshold must not be negative")
	}
	return nil
}

func (k KPI) Value(m Metrics) (float64, error) {
	switch k {
	case KPIROAS:
		return m.ROAS, nil
	case KPICPA:
		return m.CPA, nil
	case KPICTR:
		return m.CTR, nil
	case KPICPC:
		return m.CPC, nil
	case KPICPM:
		return m.CPM, nil
	case KPIHoldRate:
		return m.HoldRate, nil
	}
	return 0, fmt.Errorf("unknown kpi %q", k)
}

// Classify buckets a creative into scale/watch/kill using the account's KPI.
// Creatives below the spend threshold have not spent enough to judge.
func Classify(c Counters, t Thresholds) Verdict {
	if c.Spend < t.SpendThreshold {
		return VerdictInsufficientSpend
	}

	v, err := t.KPI.Value(Compute(c))
	if err != nil {
		return VerdictWatch
	}

	if t.Direction == DirectionLTE {
		// A zero cost metric means there were no conversions to divide by.
		if v == 0 {
			return VerdictKill
		}
		switch {
		case v <= t.ScaleThreshold:
			return VerdictScale
		case v > t.KillThreshold:
			return VerdictKill
		}
		return VerdictWatch
	}

	switch {
	case v >= t.ScaleThreshold:
		return VerdictScale
	case v < t.KillThreshold:
		return VerdictKill
	}
	return VerdictWatch
}
