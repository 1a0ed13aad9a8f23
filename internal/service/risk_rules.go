package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
)

// Advisory strings produced by the risk engine.
const (
	NoRiskFactors          = "No significant risk factors identified"
	UncategorizedAbnormals = "Abnormal lab results outside known risk categories - review with your care provider"
)

// RiskRule flags one risk category when any abnormal test name contains one of its keywords.
type RiskRule struct {
	Code     string
	Keywords []string
	Advisory string
}

// Matches reports whether any keyword occurs in the canonical test name.
func (r RiskRule) Matches(test domain.TestName) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(string(test), kw) {
			return true
		}
	}
	return false
}

// RiskEngine evaluates the fixed keyword categories over a patient's abnormal tests.
type RiskEngine struct {
	logger *logrus.Logger
	rules  []RiskRule
}

// NewRiskEngine creates an engine with the standard categories.
func NewRiskEngine(logger *logrus.Logger) *RiskEngine {
	engine := &RiskEngine{logger: logger}
	engine.initializeRules()
	return engine
}

// initializeRules sets up the categories in reporting order.
func (e *RiskEngine) initializeRules() {
	e.addRule("CARDIOVASCULAR", "Elevated cholesterol - cardiovascular risk", "cholesterol", "ldl")
	e.addRule("DIABETES", "Blood sugar abnormality - diabetes risk", "glucose", "a1c")
	e.addRule("HYPERTENSION", "Blood pressure concerns", "blood pressure", "bp")
	e.addRule("HEPATIC", "Liver function monitoring needed", "liver", "alt", "ast")
	e.addRule("RENAL", "Kidney function monitoring needed", "kidney", "creatinine")
}

func (e *RiskEngine) addRule(code, advisory string, keywords ...string) {
	e.rules = append(e.rules, RiskRule{Code: code, Keywords: keywords, Advisory: advisory})
}

// Rules returns the configured categories.
func (e *RiskEngine) Rules() []RiskRule {
	return e.rules
}

// Evaluate returns one advisory per matching category, in category order. With no abnormal
// tests the result is the single NoRiskFactors sentinel; abnormal tests that match no category
// yield UncategorizedAbnormals instead, so the sentinel only ever means "nothing abnormal".
func (e *RiskEngine) Evaluate(abnormal []domain.TestName) []string {
	if len(abnormal) == 0 {
		return []string{NoRiskFactors}
	}

	var risks []string
	for _, rule := range e.rules {
		for _, test := range abnormal {
			if rule.Matches(test) {
				risks = append(risks, rule.Advisory)
				break
			}
		}
	}

	if len(risks) == 0 {
		e.logger.WithField("abnormal_tests", len(abnormal)).Debug("Abnormal tests matched no risk category")
		return []string{UncategorizedAbnormals}
	}
	return risks
}
