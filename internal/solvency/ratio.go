// Package solvency holds the debt-to-income policy applied to a loan application.
package solvency

import (
	"errors"
	"fmt"
	"math"
)

// Decision is the outcome of a solvency screening.
type Decision string

const (
	Approved     Decision = "APPROVED"
	Rejected     Decision = "REJECTED"
	ManualReview Decision = "MANUAL_REVIEW"
)

func (d Decision) Valid() bool {
	switch d {
	case Approved, Rejected, ManualReview:
		return true
	}
	return false
}

const (
	// SentinelRatio stands in for a ratio that could not be computed and
	// is treated as maximal risk.
	SentinelRatio = 999.0

	RejectAbovePercent = 40.0
	ReviewFromPercent  = 25.0

	// incomeTolerance absorbs rounding below half a cent.
	incomeTolerance = 0.005
)

var ErrRatioUndefined = errors.New("debt-to-income ratio is undefined")

// Metrics are the three figures the policy works from, in the same currency.
type Metrics struct {
	NetSalary        float64 `json:"NetSalary" firestore:"NetSalary"`
	FixedMonthlyDebt float64 `json:"FixedMonthlyDebt" firestore:"FixedMonthlyDebt"`
	BankIncome       float64 `json:"BankIncome" firestore:"BankIncome"`
}

// Ratio returns debt / salary × 100.
func Ratio(debt, salary float64) (float64, error) {
	if salary <= 0 || debt < 0 {
		return 0, fmt.Errorf("%w: debt=%.2f salary=%.2f", ErrRatioUndefined, debt, salary)
	}
	r := debt / salary * 100
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: debt=%.2f salary=%.2f", ErrRatioUndefined, debt, salary)
	}
	return r, nil
}

// ComputeRatio is Ratio with the sentinel substituted on failure.
func ComputeRatio(m Metrics) float64 {
	r, err := Ratio(m.FixedMonthlyDebt, m.NetSalary)
	if err != nil {
		return SentinelRatio
	}
	return r
}

// FormatRatio renders a ratio as a percentage with two decimals, e.g. "30.95%".
func FormatRatio(r float64) string {
	return fmt.Sprintf("%.2f%%", r)
}

// IncomesMatch reports whether the income the bank saw equals the payslip's net salary.
func IncomesMatch(bankIncome, netSalary float64) bool {
	return math.Abs(bankIncome-netSalary) < incomeTolerance
}

// Evaluate applies the screening rules to the metrics and a precomputed ratio:
//
//	incomes differ           -> MANUAL_REVIEW (possible mismatch)
//	ratio > 40               -> REJECTED
//	25 <= ratio <= 40        -> MANUAL_REVIEW
//	ratio < 25               -> APPROVED
//
// The income check comes first, so a zero salary with bank income is
// reviewed rather than rejected on the sentinel ratio.
func Evaluate(m Metrics, ratio float64) Decision {
	switch {
	case !IncomesMatch(m.BankIncome, m.NetSalary):
		return ManualReview
	case ratio > RejectAbovePercent:
		return Rejected
	case ratio >= ReviewFromPercent:
		return ManualReview
	default:
		return Approved
	}
}
