// Package rules compiles user-defined classification rules and applies
// them to bank transactions.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dpfeiffer/comsync/pkg/models"
)

type compiledRule struct {
	rule    models.Rule
	matcher *regexp.Regexp
}

// CompiledRules is a rule set with every pattern compiled up front,
// ordered by ascending priority.
type CompiledRules struct {
	rules []compiledRule
}

// Compile turns every rule's pattern into an executable matcher. All
// compilation errors are collected, not just the first, so the caller
// can report every broken rule in one pass. All matching is
// case-insensitive.
func Compile(ruleList []models.Rule) (*CompiledRules, []error) {
	var errs []error
	compiled := make([]compiledRule, 0, len(ruleList))

	for _, r := range ruleList {
		var pattern string
		switch r.Kind {
		case models.PatternExact:
			pattern = "^" + regexp.QuoteMeta(r.Pattern) + "$"
		case models.PatternContains:
			pattern = regexp.QuoteMeta(r.Pattern)
		case models.PatternRegex:
			pattern = r.Pattern
		default:
			errs = append(errs, fmt.Errorf("rule %q: unknown pattern kind %q", r.Name, r.Kind))
			continue
		}
		matcher, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, matcher: matcher})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].rule.Priority < compiled[j].rule.Priority
	})
	return &CompiledRules{rules: compiled}, errs
}

// Classify evaluates the rules against the transaction's target field in
// ascending priority order. The first matching enabled rule wins;
// disabled rules are skipped entirely and never match.
func (c *CompiledRules) Classify(tx models.BankTransaction) (models.Rule, bool) {
	for _, cr := range c.rules {
		if !cr.rule.Enabled {
			continue
		}
		if cr.matcher.MatchString(targetField(cr.rule.Field, tx)) {
			return cr.rule, true
		}
	}
	return models.Rule{}, false
}

func targetField(field models.MatchField, tx models.BankTransaction) string {
	switch field {
	case models.FieldPayee:
		return tx.Payee
	case models.FieldMemo:
		return tx.Memo
	default:
		return tx.Payee + " " + tx.Memo
	}
}

// aggregatorMarkers flags transactions routed through known third-party
// aggregators where the real merchant is not visible in the payee. The
// deep link points the reviewer at the aggregator's own history for a
// manual lookup.
var aggregatorMarkers = []struct {
	marker string
	label  string
	url    string
}{
	{"AMAZON MKTPLC", "Amazon Marketplace order", "https://www.amazon.de/gp/css/order-history"},
	{"AMZN MKTP", "Amazon Marketplace order", "https://www.amazon.de/gp/css/order-history"},
	{"PAYPAL", "PayPal payment", "https://www.paypal.com/myaccount/transactions"},
	{"KLARNA", "Klarna payment", "https://app.klarna.com/purchases"},
}

// DetectSpecialTransactions flags transactions whose payee or memo
// carries a known aggregator marker, independent of any rule match.
// Matching is case-insensitive substring matching on both fields.
func DetectSpecialTransactions(tx models.BankTransaction) []models.ExternalLink {
	haystack := strings.ToUpper(tx.Payee + " " + tx.Memo)
	var links []models.ExternalLink
	seen := map[string]bool{}
	for _, m := range aggregatorMarkers {
		if !strings.Contains(haystack, m.marker) || seen[m.label] {
			continue
		}
		seen[m.label] = true
		links = append(links, models.ExternalLink{Label: m.label, URL: m.url})
	}
	return links
}

// ClassifyTransactions is the batch entry point: it compiles the rules
// once and wraps every bank transaction into a SyncTransaction. A rule
// match yields AutoCategorized with the rule's category (and payee
// override, when set); no match yields Pending. Any detected aggregator
// link forces NeedsAttention even when a rule matched, because the
// category may still need the external link checked before import.
//
// A broken rule set blocks the whole batch: the compile errors come back
// and no transaction is processed.
func ClassifyTransactions(ruleList []models.Rule, txs []models.BankTransaction) ([]models.SyncTransaction, []error) {
	compiled, errs := Compile(ruleList)
	if len(errs) > 0 {
		return nil, errs
	}

	out := make([]models.SyncTransaction, 0, len(txs))
	for _, bank := range txs {
		st := models.SyncTransaction{Bank: bank, Status: models.StatusPending}
		if rule, ok := compiled.Classify(bank); ok {
			st.Status = models.StatusAutoCategorized
			st.CategoryID = rule.CategoryID
			st.MatchedRuleID = rule.ID
			st.PayeeOverride = rule.PayeeOverride
		}
		if links := DetectSpecialTransactions(bank); len(links) > 0 {
			st.Links = links
			st.Status = models.StatusNeedsAttention
		}
		out = append(out, st)
	}
	return out, nil
}
