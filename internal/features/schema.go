package features

// DefaultRawColumns are the raw wallet columns the production model is
// trained on, in model column order.
var DefaultRawColumns = []string{
	"repay_amount_sum_eth",
	"risk_factor",
	"max_risk_factor",
	"avg_risk_factor",
	"total_available_borrows_avg_eth",
	"time_since_first_deposit",
	"borrow_block_number",
	"risk_factor_above_threshold_daily_count",
	"market_atr",
	"borrow_count",
	"wallet_age",
	"borrow_amount_avg_eth",
	"repay_count",
	"min_eth_ever",
	"deposit_amount_sum_eth",
	"total_available_borrows_eth",
	"incoming_tx_avg_eth",
	"avg_weighted_risk_factor",
	"total_collateral_avg_eth",
	"withdraw_amount_sum_eth",
	"market_natr",
	"market_adxr",
	"risky_first_tx_timestamp",
	"risky_tx_count",
	"outgoing_tx_count",
	"incoming_tx_count",
	"risky_sum_outgoing_amount_eth",
	"market_aroonosc",
	"risky_unique_contract_count",
	"market_macdsignal_macdfix",
	"max_eth_ever",
	"deposit_count",
	"total_balance_eth",
	"time_since_last_liquidated",
	"market_plus_dm",
	"repay_amount_avg_eth",
	"first_tx_timestamp",
	"total_collateral_eth",
	"total_gas_paid_eth",
	"risky_first_last_tx_timestamp_diff",
	"borrow_repay_diff_eth",
	"liquidation_amount_sum_eth",
	"outgoing_tx_sum_eth",
	"outgoing_tx_avg_eth",
	"liquidation_count",
	"incoming_tx_sum_eth",
	"market_macd_macdfix",
	"borrow_amount_sum_eth",
	"market_apo",
	"market_linearreg_slope",
	"withdraw_deposit_diff_if_positive_eth",
	"market_cmo",
	"unique_lending_protocol_count",
	"market_macdsignal_macdext",
	"unique_borrow_protocol_count",
	"market_adx",
	"market_cci",
	"market_fastk",
}

// Schema is the ordered, duplicate-free column list of a model's input.
type Schema []string

// DefaultSchema returns the raw columns followed by the default
// preprocessor's derived features.
func DefaultSchema() Schema {
	pre, err := NewPreprocessor(DefaultPreprocessorConfig())
	if err != nil {
		panic(err)
	}
	s := append(Schema(nil), DefaultRawColumns...)
	return append(s, pre.OutputNames()...)
}

// Contains reports whether name is part of the schema.
func (s Schema) Contains(name string) bool {
	for _, c := range s {
		if c == name {
			return true
		}
	}
	return false
}
