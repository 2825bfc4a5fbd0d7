package solvency

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/solvencyflow/internal/jsonreply"
)

// ParseFailureReason is the reasoning recorded when the model reply is unusable.
const ParseFailureReason = "parse failure"

// Verdict is the decision returned for an application.
type Verdict struct {
	Decision  Decision `json:"Decision"`
	Ratio     string   `json:"Ratio"`
	Reasoning string   `json:"Reasoning"`
}

// Fallback is the verdict used whenever the model call or its reply fails.
func Fallback(ratio float64) Verdict {
	return Verdict{
		Decision:  ManualReview,
		Ratio:     FormatRatio(ratio),
		Reasoning: ParseFailureReason,
	}
}

// ParseVerdict decodes a model reply. The ratio in the reply is ignored and
// replaced with the locally computed one so its format stays fixed.
func ParseVerdict(text string, ratio float64) (Verdict, error) {
	var reply struct {
		Decision  string `json:"Decision"`
		Reasoning string `json:"Reasoning"`
	}
	if err := jsonreply.Decode(text, &reply); err != nil {
		return Verdict{}, err
	}

	d := Decision(strings.ToUpper(strings.TrimSpace(reply.Decision)))
	if !d.Valid() {
		return Verdict{}, fmt.Errorf("model returned unknown decision %q", reply.Decision)
	}
	return Verdict{
		Decision:  d,
		Ratio:     FormatRatio(ratio),
		Reasoning: strings.TrimSpace(reply.Reasoning),
	}, nil
}
