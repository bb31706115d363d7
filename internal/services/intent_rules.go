package services

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/normalization"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

//go:embed rules.yaml
var rulesYAML []byte

type levelRule struct {
	Value      string   `yaml:"value"`
	Phrases    []string `yaml:"phrases"`
	Adjectives []string `yaml:"adjectives"`
}

type fieldRule struct {
	Field      string      `yaml:"field"`
	Keywords   []string    `yaml:"keywords"`
	Levels     []levelRule `yaml:"levels"`
	OnIncrease string      `yaml:"on_increase"`
	OnDecrease string      `yaml:"on_decrease"`
}

type ruleTable struct {
	ChangeSignals   []string    `yaml:"change_signals"`
	IncreaseSignals []string    `yaml:"increase_signals"`
	DecreaseSignals []string    `yaml:"decrease_signals"`
	Fields          []fieldRule `yaml:"fields"`
	MonthlyPhrases  []string    `yaml:"monthly_phrases"`
	CurrencyUnits   []string    `yaml:"currency_units"`
}

// HeuristicMatcher detects structured profile-change commands without any
// network round trip. The rule table is declarative and ordered; matching is
// evaluated against every normalized variant of the utterance.
type HeuristicMatcher struct {
	rules ruleTable
	log   *logger.Logger
}

func NewHeuristicMatcher(log *logger.Logger) (*HeuristicMatcher, error) {
	var table ruleTable
	if err := yaml.Unmarshal(rulesYAML, &table); err != nil {
		return nil, fmt.Errorf("parse intent rules: %w", err)
	}
	if len(table.Fields) == 0 {
		return nil, fmt.Errorf("intent rule table has no fields")
	}
	return &HeuristicMatcher{
		rules: table,
		log:   log.With("service", "HeuristicMatcher"),
	}, nil
}

// Detect returns the proposed profile updates for the utterance, or nil when
// the utterance is not a profile-change command. Absence of a match is a
// normal result, never an error.
func (m *HeuristicMatcher) Detect(raw string) *types.ProfileUpdateIntent {
	variants := normalization.Variants(raw)
	if len(variants) == 0 || variants[0] == "" {
		return nil
	}

	updates := map[string]string{}

	for _, rule := range m.rules.Fields {
		for _, text := range variants {
			if !m.hasChangeSignal(text) || !containsAny(text, rule.Keywords) {
				continue
			}
			if value := m.resolveLevel(text, rule); value != "" {
				updates[rule.Field] = value
				break
			}
		}
	}

	// Monetary amount detection is independent of the qualitative rules.
	for _, text := range variants {
		if amount, ok := m.detectMonthlyAmount(text); ok {
			updates[types.FieldMonthlyContribution] = amount
			break
		}
	}

	if len(updates) == 0 {
		return nil
	}
	return &types.ProfileUpdateIntent{
		Updates: updates,
		Summary: summarizeUpdates(updates),
	}
}

func (m *HeuristicMatcher) hasChangeSignal(text string) bool {
	return containsAnyWord(text, m.rules.ChangeSignals)
}

// resolveLevel picks the most specific qualitative level: direct phrasing
// first, then a standalone adjective, then the directional fallback.
func (m *HeuristicMatcher) resolveLevel(text string, rule fieldRule) string {
	for _, level := range rule.Levels {
		if containsAny(text, level.Phrases) {
			return level.Value
		}
	}
	for _, level := range rule.Levels {
		if containsAnyWord(text, level.Adjectives) {
			return level.Value
		}
	}
	if containsAnyWord(text, m.rules.IncreaseSignals) {
		return rule.OnIncrease
	}
	if containsAnyWord(text, m.rules.DecreaseSignals) {
		return rule.OnDecrease
	}
	return ""
}

// amountPattern tolerates thousand separators (space or dot) and decimal
// commas: "5 000", "5.000", "1500,50".
var amountPattern = regexp.MustCompile(`(\d{1,3}(?:[ .]\d{3})+|\d+)(?:,(\d+))?`)

func (m *HeuristicMatcher) detectMonthlyAmount(text string) (string, bool) {
	if !containsAny(text, m.rules.MonthlyPhrases) {
		return "", false
	}
	if !containsAny(text, m.rules.CurrencyUnits) && !containsAnyWord(text, m.rules.CurrencyUnits) {
		return "", false
	}
	match := amountPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	whole := strings.NewReplacer(" ", "", ".", "").Replace(match[1])
	value := whole
	if match[2] != "" {
		value = whole + "." + match[2]
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return "", false
	}
	return value, true
}

func summarizeUpdates(updates map[string]string) string {
	parts := make([]string, 0, len(updates))
	if v, ok := updates[types.FieldRiskTolerance]; ok {
		parts = append(parts, "risk tolerance to "+v)
	}
	if v, ok := updates[types.FieldInvestmentHorizon]; ok {
		parts = append(parts, "investment horizon to "+v)
	}
	if v, ok := updates[types.FieldMonthlyContribution]; ok {
		parts = append(parts, "monthly contribution to "+v)
	}
	return "Set " + strings.Join(parts, ", ")
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// containsAnyWord matches whole words only, so short adjectives never match
// inside unrelated tokens.
func containsAnyWord(text string, words []string) bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == ':' || r == ';'
	})
	for _, f := range fields {
		for _, w := range words {
			if w != "" && f == w {
				return true
			}
		}
	}
	return false
}
