package market

import "time"

// Candle represents a single OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// MACD holds MACD indicator values
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBands holds Bollinger Band levels
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// WidthPercent returns the band width as a percentage of the middle band.
// Returns 0 when the middle band is zero.
func (b BollingerBands) WidthPercent() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle * 100
}

// ADX holds ADX and directional index values
type ADX struct {
	Value   float64 `json:"value"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
}

// Aroon holds Aroon up/down values
type Aroon struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

// Stochastic holds stochastic oscillator values
type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// RegimeInfo classifies the current market regime
type RegimeInfo struct {
	Regime     string `json:"regime"`     // "trending", "ranging", "choppy"
	Volatility string `json:"volatility"` // "low", "medium", "high"
}

// DivergenceFlags carries precomputed divergence detections.
// Direction values are "bullish", "bearish" or "" when not detected.
type DivergenceFlags struct {
	RSI    string `json:"rsi"`
	MACD   string `json:"macd"`
	Volume string `json:"volume"`
	OBV    string `json:"obv"`
}

// IndicatorSnapshot is the precomputed technical indicator bundle for one
// asset. Every field besides Price is optional; nil means the upstream
// indicator library could not produce the value. Snapshots are supplied
// fresh per call and never persisted.
type IndicatorSnapshot struct {
	Price float64 `json:"price"`

	RSI14 *float64 `json:"rsi_14,omitempty"`
	RSI7  *float64 `json:"rsi_7,omitempty"`

	EMA8  *float64 `json:"ema_8,omitempty"`
	EMA20 *float64 `json:"ema_20,omitempty"`
	EMA50 *float64 `json:"ema_50,omitempty"`
	VWAP  *float64 `json:"vwap,omitempty"`

	MACD       *MACD           `json:"macd,omitempty"`
	Bollinger  *BollingerBands `json:"bollinger,omitempty"`
	ADX        *ADX            `json:"adx,omitempty"`
	Aroon      *Aroon          `json:"aroon,omitempty"`
	Stochastic *Stochastic     `json:"stochastic,omitempty"`
	WilliamsR  *float64        `json:"williams_r,omitempty"`

	SupportLevels    []float64 `json:"support_levels,omitempty"`
	ResistanceLevels []float64 `json:"resistance_levels,omitempty"`
	FibonacciLevels  []float64 `json:"fibonacci_levels,omitempty"`

	ATRPercent *float64 `json:"atr_percent,omitempty"`

	Regime     *RegimeInfo      `json:"regime,omitempty"`
	Divergence *DivergenceFlags `json:"divergence,omitempty"`
}

// FuturesData carries derivatives-market context for one asset
type FuturesData struct {
	FundingRate            *float64 `json:"funding_rate,omitempty"`
	OpenInterest           *float64 `json:"open_interest,omitempty"`
	LongShortRatio         *float64 `json:"long_short_ratio,omitempty"`
	LiquidationDistancePct *float64 `json:"liquidation_distance_pct,omitempty"`
	PremiumIndex           *float64 `json:"premium_index,omitempty"`
	BTCCorrelation7d       *float64 `json:"btc_correlation_7d,omitempty"`
}

// VolumeAnalysis carries the precomputed volume bundle
type VolumeAnalysis struct {
	NetDelta        *float64 `json:"net_delta,omitempty"`
	CVD             *float64 `json:"cvd,omitempty"`
	VolumeRatio     *float64 `json:"volume_ratio,omitempty"` // current vs average
	VolumeConfirmed *bool    `json:"volume_confirmed,omitempty"`
}

// OrderBookSnapshot carries a condensed order book view
type OrderBookSnapshot struct {
	BidDepth  *float64 `json:"bid_depth,omitempty"`
	AskDepth  *float64 `json:"ask_depth,omitempty"`
	Imbalance *float64 `json:"imbalance,omitempty"` // -1 (ask heavy) .. +1 (bid heavy)
}

// TrendAlignment describes multi-timeframe trend agreement
type TrendAlignment struct {
	DailyTrend string   `json:"daily_trend"` // "uptrend", "downtrend", "neutral"
	H4Aligned  *bool    `json:"h4_aligned,omitempty"`
	H1Aligned  *bool    `json:"h1_aligned,omitempty"`
	Aligned    *bool    `json:"aligned,omitempty"`
	Strength   *float64 `json:"strength,omitempty"` // 0..1
}

// Momentum carries short-horizon percentage price changes
type Momentum struct {
	Change5m     *float64 `json:"change_5m,omitempty"`
	Change15m    *float64 `json:"change_15m,omitempty"`
	Change60m    *float64 `json:"change_60m,omitempty"`
	BTCChange60m *float64 `json:"btc_change_60m,omitempty"`
}

// TimeframeFutures carries funding/open-interest readings for a single
// timeframe, with the previous reading for slope classification
type TimeframeFutures struct {
	Timeframe        string  `json:"timeframe"` // "5m", "15m", "1h", "4h", "1d"
	FundingRate      float64 `json:"funding_rate"`
	PrevFundingRate  float64 `json:"prev_funding_rate"`
	OpenInterest     float64 `json:"open_interest"`
	PrevOpenInterest float64 `json:"prev_open_interest"`
	Price            float64 `json:"price"`
	PrevPrice        float64 `json:"prev_price"`
}

// ExternalContext bundles all non-indicator context for one asset
type ExternalContext struct {
	Futures            *FuturesData       `json:"futures,omitempty"`
	Volume             *VolumeAnalysis    `json:"volume,omitempty"`
	OrderBook          *OrderBookSnapshot `json:"order_book,omitempty"`
	TrendAlignment     *TrendAlignment    `json:"trend_alignment,omitempty"`
	ExpectedConfidence *float64           `json:"expected_confidence,omitempty"` // 0..100
}

// AssetBundle is the full per-asset input: ordered history plus the
// precomputed snapshot and context. Every field is optional; missing data
// degrades coverage rather than failing a call.
type AssetBundle struct {
	Symbol            string             `json:"symbol"`
	Candles           []Candle           `json:"candles,omitempty"`
	Snapshot          *IndicatorSnapshot `json:"snapshot,omitempty"`
	Trend             *TrendAlignment    `json:"trend,omitempty"`
	Context           *ExternalContext   `json:"context,omitempty"`
	Momentum          *Momentum          `json:"momentum,omitempty"`
	FuturesTimeframes []TimeframeFutures `json:"futures_timeframes,omitempty"`
}

// TrendFor returns the trend alignment, preferring the bundle-level field
// and falling back to the one embedded in the external context.
func (b *AssetBundle) TrendFor() *TrendAlignment {
	if b == nil {
		return nil
	}
	if b.Trend != nil {
		return b.Trend
	}
	if b.Context != nil {
		return b.Context.TrendAlignment
	}
	return nil
}

// Float is a convenience constructor for optional float fields
func Float(v float64) *float64 { return &v }

// Bool is a convenience constructor for optional bool fields
func Bool(v bool) *bool { return &v }
