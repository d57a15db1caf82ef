package backtest

import "math"

// Grade buckets how far a prediction landed from the realized catch.
type Grade string

const (
	GradePerfect   Grade = "perfect"
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

// Grades in report order.
var Grades = []Grade{GradePerfect, GradeExcellent, GradeGood, GradeFair, GradePoor}

var gradeText = map[Grade]string{
	GradePerfect:   "完璧",
	GradeExcellent: "優秀 (誤差15%以下)",
	GradeGood:      "良好 (誤差25%以下)",
	GradeFair:      "普通 (誤差40%以下)",
	GradePoor:      "要改善 (誤差40%以上)",
}

// Text is the display label shown to anglers.
func (g Grade) Text() string {
	if t, ok := gradeText[g]; ok {
		return t
	}
	return "不明"
}

// Accuracy compares one prediction with the realized catch.
type Accuracy struct {
	ErrorAmount      int     `json:"error_amount"`
	ErrorPercent     float64 `json:"error_percent"`
	Grade            Grade   `json:"accuracy_grade"`
	GradeText        string  `json:"accuracy_grade_text"`
	DirectionCorrect bool    `json:"direction_correct"`
}

// Measure grades predicted against actual. A zero actual is perfect only
// when the prediction is also zero.
func Measure(predicted, actual int) Accuracy {
	diff := predicted - actual
	if diff < 0 {
		diff = -diff
	}
	acc := Accuracy{ErrorAmount: diff}

	if actual == 0 {
		if predicted > 0 {
			acc.ErrorPercent = 100
			acc.Grade = GradePoor
		} else {
			acc.Grade = GradePerfect
		}
	} else {
		pct := float64(diff) / float64(actual) * 100
		acc.ErrorPercent = math.Round(pct*10) / 10
		switch {
		case pct <= 15:
			acc.Grade = GradeExcellent
		case pct <= 25:
			acc.Grade = GradeGood
		case pct <= 40:
			acc.Grade = GradeFair
		default:
			acc.Grade = GradePoor
		}
	}
	acc.GradeText = acc.Grade.Text()
	acc.DirectionCorrect = directionCorrect(predicted, actual)
	return acc
}

// directionCorrect holds for every pair of non-negative counts, so it does
// not yet measure direction.
// TODO: replace once the intended comparison (over/under against a trend or
// the previous day) is agreed; reports still carry the current value.
func directionCorrect(predicted, actual int) bool {
	return (predicted > actual && predicted > 0) ||
		(predicted < actual && actual > 0) ||
		predicted == actual
}
