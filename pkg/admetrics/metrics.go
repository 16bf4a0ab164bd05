package admetrics

// Counters are the raw additive values reported by the ads platform. Every
// ratio is derived from these and never stored.
type Counters struct {
	Spend          float64 `json:"spend"`
	Impressions    int64   `json:"impressions"`
	Reach          int64   `json:"reach"`
	Clicks         int64   `json:"clicks"`
	Purchases      int64   `json:"purchases"`
	PurchaseValue  float64 `json:"purchase_value"`
	AddsToCart     int64   `json:"adds_to_cart"`
	Video3sViews   int64   `json:"video_3s_views"`
	VideoThruplays int64   `json:"video_thruplays"`
}

func (c Counters) Add(o Counters) Counters {
	return Counters{
		Spend:          c.Spend + o.Spend,
		Impressions:    c.Impressions + o.Impressions,
		Reach:          c.Reach + o.Reach,
		Clicks:         c.Clicks + o.Clicks,
		Purchases:      c.Purchases + o.Purchases,
		PurchaseValue:  c.PurchaseValue + o.PurchaseValue,
		AddsToCart:     c.AddsToCart + o.AddsToCart,
		Video3sViews:   c.Video3sViews + o.Video3sViews,
		VideoThruplays: c.VideoThruplays + o.VideoThruplays,
	}
}

func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Sum adds counters together. Aggregated ratios must always be computed from
// the result of Sum, never by averaging per-row ratios.
func Sum(rows ...Counters) Counters {
	var total Counters
	for _, r := range rows {
		total = total.Add(r)
	}
	return total
}

// Metrics are the derived ratios. CPMR is nil when there is no frequency data.
type Metrics struct {
	CTR        float64  `json:"ctr"`
	CPM        float64  `json:"cpm"`
	CPC        float64  `json:"cpc"`
	CPA        float64  `json:"cpa"`
	ROAS       float64  `json:"roas"`
	CostPerATC float64  `json:"cost_per_atc"`
	Frequency  float64  `json:"frequency"`
	CPMR       *float64 `json:"cpmr"`
	HookRate   float64  `json:"hook_rate"`
	HoldRate   float64  `json:"hold_rate"`
}

// safeDiv returns 0 when the denominator is 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func CTR(clicks, impressions int64) float64 {
	return safeDiv(float64(clicks), float64(impressions)) * 100
}

func CPM(spend float64, impressions int64) float64 {
	return safeDiv(spend, float64(impressions)) * 1000
}

func CPC(spend float64, clicks int64) float64 {
	return safeDiv(spend, float64(clicks))
}

func CPA(spend float64, purchases int64) float64 {
	return safeDiv(spend, float64(purchases))
}

func ROAS(purchaseValue, spend float64) float64 {
	return safeDiv(purchaseValue, spend)
}

func CostPerATC(spend float64, addsToCart int64) float64 {
	return safeDiv(spend, float64(addsToCart))
}

func Frequency(impressions, reach int64) float64 {
	return safeDiv(float64(impressions), float64(reach))
}

// CPMR is the frequency-adjusted CPM. ok is false when either input is missing.
func CPMR(cpm, frequency float64) (float64, bool) {
	if cpm == 0 || frequency == 0 {
		return 0, false
	}
	return cpm * frequency, true
}

func HookRate(video3sViews, impressions int64) float64 {
	return safeDiv(float64(video3sViews), float64(impressions)) * 100
}

func HoldRate(thruplays, video3sViews int64) float64 {
	return safeDiv(float64(thruplays), float64(video3sViews)) * 100
}

func Compute(c Counters) Metrics {
	m := Metrics{
		CTR:        CTR(c.Clicks, c.Impressions),
		CPM:        CPM(c.Spend, c.Impressions),
		CPC:        CPC(c.Spend, c.Clicks),
		CPA:        CPA(c.Spend, c.Purchases),
		ROAS:       ROAS(c.PurchaseValue, c.Spend),
		CostPerATC: CostPerATC(c.Spend, c.AddsToCart),
		Frequency:  Frequency(c.Impressions, c.Reach),
		HookRate:   HookRate(c.Video3sViews, c.Impressions),
		HoldRate:   HoldRate(c.VideoThruplays, c.Video3sViews),
	}
	if v, ok := CPMR(m.CPM, m.Frequency); ok {
		m.CPMR = &v
	}
	return m
}

// Aggregate sums the rows and derives metrics from the totals.
func Aggregate(rows ...Counters) (Counters, Metrics) {
	total := Sum(rows...)
	return total, Compute(total)
}
