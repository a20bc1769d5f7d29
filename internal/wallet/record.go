// Package wallet defines the raw wallet record scored by the risk model and
// the codecs used to move it between CSV datasets, JSON requests and the
// name-keyed rows consumed by the feature pipeline.
package wallet

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Record is one wallet's raw behavioral and market attributes for a single
// scoring event. Counters are integers, monetary and indicator fields are
// floats. WalletAddress identifies the wallet and is never a feature.
type Record struct {
	// Borrow event and wallet identity.
	BorrowBlockNumber int64   `json:"borrow_block_number"`
	BorrowTimestamp   float64 `json:"borrow_timestamp"`
	WalletAddress     string  `json:"wallet_address"`
	FirstTxTimestamp  float64 `json:"first_tx_timestamp"`
	LastTxTimestamp   float64 `json:"last_tx_timestamp"`
	WalletAge         float64 `json:"wallet_age"`

	// Transaction activity.
	IncomingTxCount    int64   `json:"incoming_tx_count"`
	OutgoingTxCount    int64   `json:"outgoing_tx_count"`
	NetIncomingTxCount int64   `json:"net_incoming_tx_count"`
	TotalGasPaidETH    float64 `json:"total_gas_paid_eth"`
	AvgGasPaidPerTxETH float64 `json:"avg_gas_paid_per_tx_eth"`

	// Risky contract interaction.
	RiskyTxCount                  int64   `json:"risky_tx_count"`
	RiskyUniqueContractCount      int64   `json:"risky_unique_contract_count"`
	RiskyFirstTxTimestamp         int64   `json:"risky_first_tx_timestamp"`
	RiskyLastTxTimestamp          int64   `json:"risky_last_tx_timestamp"`
	RiskyFirstLastTxTimestampDiff int64   `json:"risky_first_last_tx_timestamp_diff"`
	RiskySumOutgoingAmountETH     float64 `json:"risky_sum_outgoing_amount_eth"`

	// Transfer volumes and balances.
	OutgoingTxSumETH float64 `json:"outgoing_tx_sum_eth"`
	IncomingTxSumETH float64 `json:"incoming_tx_sum_eth"`
	OutgoingTxAvgETH float64 `json:"outgoing_tx_avg_eth"`
	IncomingTxAvgETH float64 `json:"incoming_tx_avg_eth"`
	MaxETHEver       float64 `json:"max_eth_ever"`
	MinETHEver       float64 `json:"min_eth_ever"`
	TotalBalanceETH  float64 `json:"total_balance_eth"`

	// Lending position.
	RiskFactor                         float64 `json:"risk_factor"`
	TotalCollateralETH                 float64 `json:"total_collateral_eth"`
	TotalCollateralAvgETH              float64 `json:"total_collateral_avg_eth"`
	TotalAvailableBorrowsETH           float64 `json:"total_available_borrows_eth"`
	TotalAvailableBorrowsAvgETH        float64 `json:"total_available_borrows_avg_eth"`
	AvgWeightedRiskFactor              float64 `json:"avg_weighted_risk_factor"`
	RiskFactorAboveThresholdDailyCount float64 `json:"risk_factor_above_threshold_daily_count"`
	AvgRiskFactor                      float64 `json:"avg_risk_factor"`
	MaxRiskFactor                      float64 `json:"max_risk_factor"`
	BorrowAmountSumETH                 float64 `json:"borrow_amount_sum_eth"`
	BorrowAmountAvgETH                 float64 `json:"borrow_amount_avg_eth"`
	BorrowCount                        int64   `json:"borrow_count"`
	RepayAmountSumETH                  float64 `json:"repay_amount_sum_eth"`
	RepayAmountAvgETH                  float64 `json:"repay_amount_avg_eth"`
	RepayCount                         int64   `json:"repay_count"`
	BorrowRepayDiffETH                 float64 `json:"borrow_repay_diff_eth"`
	DepositCount                       int64   `json:"deposit_count"`
	DepositAmountSumETH                float64 `json:"deposit_amount_sum_eth"`
	TimeSinceFirstDeposit              float64 `json:"time_since_first_deposit"`
	WithdrawAmountSumETH               float64 `json:"withdraw_amount_sum_eth"`
	WithdrawDepositDiffIfPositiveETH   float64 `json:"withdraw_deposit_diff_if_positive_eth"`
	LiquidationCount                   int64   `json:"liquidation_count"`
	TimeSinceLastLiquidated            float64 `json:"time_since_last_liquidated"`
	LiquidationAmountSumETH            float64 `json:"liquidation_amount_sum_eth"`

	// Precomputed market indicators at borrow time.
	MarketADX               float64 `json:"market_adx"`
	MarketADXR              float64 `json:"market_adxr"`
	MarketAPO               float64 `json:"market_apo"`
	MarketAroonOsc          float64 `json:"market_aroonosc"`
	MarketAroonUp           float64 `json:"market_aroonup"`
	MarketATR               float64 `json:"market_atr"`
	MarketCCI               float64 `json:"market_cci"`
	MarketCMO               float64 `json:"market_cmo"`
	MarketCorrel            float64 `json:"market_correl"`
	MarketDX                float64 `json:"market_dx"`
	MarketFastK             float64 `json:"market_fastk"`
	MarketFastD             float64 `json:"market_fastd"`
	MarketHTTrendMode       int64   `json:"market_ht_trendmode"`
	MarketLinearRegSlope    float64 `json:"market_linearreg_slope"`
	MarketMACDMACDExt       float64 `json:"market_macd_macdext"`
	MarketMACDMACDFix       float64 `json:"market_macd_macdfix"`
	MarketMACD              float64 `json:"market_macd"`
	MarketMACDSignalMACDExt float64 `json:"market_macdsignal_macdext"`
	MarketMACDSignalMACDFix float64 `json:"market_macdsignal_macdfix"`
	MarketMACDSignal        float64 `json:"market_macdsignal"`
	MarketMaxDrawdown365d   float64 `json:"market_max_drawdown_365d"`
	MarketNATR              float64 `json:"market_natr"`
	MarketPlusDI            float64 `json:"market_plus_di"`
	MarketPlusDM            float64 `json:"market_plus_dm"`
	MarketPPO               float64 `json:"market_ppo"`
	MarketROCP              float64 `json:"market_rocp"`
	MarketROCR              float64 `json:"market_rocr"`

	// Protocol diversity.
	UniqueBorrowProtocolCount  int64 `json:"unique_borrow_protocol_count"`
	UniqueLendingProtocolCount int64 `json:"unique_lending_protocol_count"`
}

// Row is a name-keyed set of numeric values, either raw wallet columns or
// features derived from them.
type Row map[string]float64

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Names returns the row's keys in sorted order.
func (r Row) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Labeled pairs a record with its training label (0 or 1).
type Labeled struct {
	Record Record
	Target int
}

// ColumnKind describes how a record field is encoded.
type ColumnKind int

const (
	KindFloat ColumnKind = iota
	KindInteger
	KindString
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	default:
		return "float"
	}
}

// Column describes one field of Record by its wire name.
type Column struct {
	Name  string
	Kind  ColumnKind
	index int
}

// TargetColumn is the label column of training datasets.
const TargetColumn = "target"

var (
	columns     []Column
	columnIndex map[string]int
)

func init() {
	t := reflect.TypeOf(Record{})
	columnIndex = make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		kind := KindFloat
		switch f.Type.Kind() {
		case reflect.Int64:
			kind = KindInteger
		case reflect.String:
			kind = KindString
		}
		columnIndex[name] = len(columns)
		columns = append(columns, Column{Name: name, Kind: kind, index: i})
	}
}

// Columns returns every record field in declaration order.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

// NumericColumns returns the names of all fields that can be used as features.
func NumericColumns() []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.Kind != KindString {
			names = append(names, c.Name)
		}
	}
	return names
}

// LookupColumn returns the column with the given wire name.
func LookupColumn(name string) (Column, bool) {
	i, ok := columnIndex[name]
	if !ok {
		return Column{}, false
	}
	return columns[i], true
}

// Row projects every numeric field of r onto a Row keyed by wire name.
func (r *Record) Row() Row {
	v := reflect.ValueOf(r).Elem()
	row := make(Row, len(columns))
	for _, c := range columns {
		switch c.Kind {
		case KindInteger:
			row[c.Name] = float64(v.Field(c.index).Int())
		case KindFloat:
			row[c.Name] = v.Field(c.index).Float()
		}
	}
	return row
}

// Value returns the numeric value of the named field.
func (r *Record) Value(name string) (float64, bool) {
	c, ok := LookupColumn(name)
	if !ok || c.Kind == KindString {
		return 0, false
	}
	f := reflect.ValueOf(r).Elem().Field(c.index)
	if c.Kind == KindInteger {
		return float64(f.Int()), true
	}
	return f.Float(), true
}

// Set assigns a numeric value to the named field. Integer fields reject
// non-integral values.
func (r *Record) Set(name string, value float64) error {
	c, ok := LookupColumn(name)
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	f := reflect.ValueOf(r).Elem().Field(c.index)
	switch c.Kind {
	case KindString:
		return fmt.Errorf("column %q is not numeric", name)
	case KindInteger:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return fmt.Errorf("column %q expects an integer, got %v", name, value)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if value < math.MinInt64 || value >= math.MaxInt64 {
			return fmt.Errorf("column %q is out of the int64 range, got %v", name, value)
		}
		f.SetInt(int64(value))
	default:
		f.SetFloat(value)
	}
	return nil
}
