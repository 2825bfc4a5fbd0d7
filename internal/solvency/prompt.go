package solvency

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are a professional financial risk analyst screening loan applications. You apply the decision rules you are given exactly and answer only with a single JSON object."

const decisionPromptTemplate = `Make the final solvency decision for a loan application using the extracted data below.

RULES:
1. If Calculated_Ratio > %[5]s%%, the decision is REJECTED.
2. If Calculated_Ratio is between %[6]s%% and %[5]s%% (inclusive), the decision is MANUAL_REVIEW.
3. If Calculated_Ratio < %[6]s%% AND Bank_Income matches Net_Salary, the decision is APPROVED.
4. If Bank_Income does not match Net_Salary (possible fraud or mismatch), the decision is MANUAL_REVIEW and the reasoning must flag the mismatch.

DATA:
- Net_Salary_Nomina: %.2[1]f
- Total_Fixed_Debt: %.2[2]f
- Bank_Income: %.2[3]f
- Calculated_Ratio: %[4]s

Respond with a JSON object that follows this schema exactly:
{
  "Decision": "APPROVED" | "REJECTED" | "MANUAL_REVIEW",
  "Ratio": "%[4]s",
  "Reasoning": "Brief explanation based on the rules."
}`

// BuildPrompt renders the decision prompt for the given metrics and ratio.
func BuildPrompt(m Metrics, ratio float64) string {
	return strings.TrimSpace(fmt.Sprintf(decisionPromptTemplate,
		m.NetSalary,
		m.FixedMonthlyDebt,
		m.BankIncome,
		FormatRatio(ratio),
		trimPercent(RejectAbovePercent),
		trimPercent(ReviewFromPercent),
	))
}

func trimPercent(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
