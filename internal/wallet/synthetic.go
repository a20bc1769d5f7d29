package wallet

import (
	"fmt"
	"math"
	"math/rand"
)

// Synthetic generates n labeled wallet records from a fixed seed. Riskier
// wallets borrow more than they repay, run a high risk factor and have
// interacted with flagged contracts; the label follows that score with
// some noise so both classes overlap.
func Synthetic(n int, seed int64) []Labeled {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Labeled, n)

	for i := range out {
		borrowTs := 1.6e9 + rng.Float64()*1.2e8
		walletAge := 86400 * (30 + rng.Float64()*1500)
		firstTx := borrowTs - walletAge
		lastTx := borrowTs - rng.Float64()*86400*10

		borrowCount := int64(1 + rng.Intn(40))
		borrowSum := math.Exp(rng.NormFloat64()*1.5 + 1)
		repayRatio := rng.Float64()
		if rng.Float64() < 0.3 {
			repayRatio = 0
		}
		repaySum := borrowSum * repayRatio
		repayCount := int64(float64(borrowCount) * repayRatio)

		riskyCount := int64(0)
		if rng.Float64() < 0.4 {
			riskyCount = int64(1 + rng.Intn(25))
		}
		riskyFirst := int64(0)
		riskyLast := int64(0)
		if riskyCount > 0 {
			riskyFirst = int64(firstTx + rng.Float64()*(borrowTs-firstTx))
			riskyLast = riskyFirst + int64(rng.Float64()*(borrowTs-float64(riskyFirst)))
		}

		riskFactor := 0.5 + rng.Float64()*2.5
		incoming := int64(rng.Intn(500))
		outgoing := int64(rng.Intn(500))
		depositCount := int64(rng.Intn(30))
		depositSum := math.Exp(rng.NormFloat64() + 1.5)
		withdrawSum := depositSum * rng.Float64() * 1.2
		liquidations := int64(0)
		if rng.Float64() < 0.15 {
			liquidations = int64(1 + rng.Intn(4))
		}
		collateral := depositSum * (0.5 + rng.Float64())
		balance := math.Max(0, rng.NormFloat64()*5+10)

		rec := Record{
			BorrowBlockNumber:                  int64(12_000_000 + borrowTs/12 - 1.3e8),
			BorrowTimestamp:                    math.Floor(borrowTs),
			WalletAddress:                      fmt.Sprintf("0x%040x", rng.Uint64()),
			FirstTxTimestamp:                   math.Floor(firstTx),
			LastTxTimestamp:                    math.Floor(lastTx),
			WalletAge:                          walletAge,
			IncomingTxCount:                    incoming,
			OutgoingTxCount:                    outgoing,
			NetIncomingTxCount:                 incoming - outgoing,
			TotalGasPaidETH:                    float64(outgoing) * 0.002 * rng.Float64(),
			AvgGasPaidPerTxETH:                 0.002 * rng.Float64(),
			RiskyTxCount:                       riskyCount,
			RiskyUniqueContractCount:           riskyCount / 3,
			RiskyFirstTxTimestamp:              riskyFirst,
			RiskyLastTxTimestamp:               riskyLast,
			RiskyFirstLastTxTimestampDiff:      riskyLast - riskyFirst,
			RiskySumOutgoingAmountETH:          float64(riskyCount) * rng.Float64(),
			OutgoingTxSumETH:                   float64(outgoing) * rng.Float64(),
			IncomingTxSumETH:                   float64(incoming) * rng.Float64(),
			OutgoingTxAvgETH:                   rng.Float64() * 2,
			IncomingTxAvgETH:                   rng.Float64() * 2,
			MaxETHEver:                         balance + rng.Float64()*50,
			MinETHEver:                         rng.Float64() * 0.1,
			TotalBalanceETH:                    balance,
			RiskFactor:                         riskFactor,
			TotalCollateralETH:                 collateral,
			TotalCollateralAvgETH:              collateral * (0.8 + rng.Float64()*0.4),
			TotalAvailableBorrowsETH:           collateral * 0.7 * rng.Float64(),
			TotalAvailableBorrowsAvgETH:        collateral * 0.7 * rng.Float64(),
			AvgWeightedRiskFactor:              riskFactor * (0.8 + rng.Float64()*0.4),
			RiskFactorAboveThresholdDailyCount: math.Floor(rng.Float64() * 20),
			AvgRiskFactor:                      riskFactor * (0.9 + rng.Float64()*0.2),
			MaxRiskFactor:                      riskFactor * (1 + rng.Float64()),
			BorrowAmountSumETH:                 borrowSum,
			BorrowAmountAvgETH:                 borrowSum / float64(borrowCount),
			BorrowCount:                        borrowCount,
			RepayAmountSumETH:                  repaySum,
			RepayAmountAvgETH:                  repaySum / float64(borrowCount),
			RepayCount:                         repayCount,
			BorrowRepayDiffETH:                 borrowSum - repaySum,
			DepositCount:                       depositCount,
			DepositAmountSumETH:                depositSum,
			TimeSinceFirstDeposit:              walletAge * rng.Float64(),
			WithdrawAmountSumETH:               withdrawSum,
			WithdrawDepositDiffIfPositiveETH:   math.Max(0, withdrawSum-depositSum),
			LiquidationCount:                   liquidations,
			TimeSinceLastLiquidated:            float64(liquidations) * 86400 * rng.Float64() * 100,
			LiquidationAmountSumETH:            float64(liquidations) * rng.Float64() * 5,
			MarketADX:                          10 + rng.Float64()*40,
			MarketADXR:                         10 + rng.Float64()*40,
			MarketAPO:                          rng.NormFloat64() * 50,
			MarketAroonOsc:                     rng.Float64()*200 - 100,
			MarketAroonUp:                      rng.Float64() * 100,
			MarketATR:                          20 + rng.Float64()*150,
			MarketCCI:                          rng.NormFloat64() * 100,
			MarketCMO:                          rng.Float64()*200 - 100,
			MarketCorrel:                       rng.Float64()*2 - 1,
			MarketDX:                           rng.Float64() * 60,
			MarketFastK:                        rng.Float64() * 100,
			MarketFastD:                        rng.Float64() * 100,
			MarketHTTrendMode:                  int64(rng.Intn(2)),
			MarketLinearRegSlope:               rng.NormFloat64() * 10,
			MarketMACDMACDExt:                  rng.NormFloat64() * 30,
			MarketMACDMACDFix:                  rng.NormFloat64() * 30,
			MarketMACD:                         rng.NormFloat64() * 30,
			MarketMACDSignalMACDExt:            rng.NormFloat64() * 30,
			MarketMACDSignalMACDFix:            rng.NormFloat64() * 30,
			MarketMACDSignal:                   rng.NormFloat64() * 30,
			MarketMaxDrawdown365d:              -rng.Float64() * 0.8,
			MarketNATR:                         rng.Float64() * 8,
			MarketPlusDI:                       rng.Float64() * 50,
			MarketPlusDM:                       rng.Float64() * 300,
			MarketPPO:                          rng.NormFloat64() * 3,
			MarketROCP:                         rng.NormFloat64() * 0.1,
			MarketROCR:                         1 + rng.NormFloat64()*0.1,
			UniqueBorrowProtocolCount:          int64(1 + rng.Intn(4)),
			UniqueLendingProtocolCount:         int64(1 + rng.Intn(5)),
		}

		score := 2.2*(1-repayRatio) + 0.8*(riskFactor-1.5) + 0.08*float64(riskyCount) + 0.6*float64(liquidations) - 2.2
		target := 0
		if score+rng.NormFloat64()*0.5 > 0 {
			target = 1
		}
		out[i] = Labeled{Record: rec, Target: target}
	}

	return out
}
