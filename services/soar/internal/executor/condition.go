package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nightwatch-siem/nightwatch/services/soar/internal/playbook"
)

// alertToMap flattens an Alert into a dotted-path lookup table so triggers
// and action conditions can reference fields like "source.hostname".
func alertToMap(a *playbook.Alert) map[string]interface{} {
	return map[string]interface{}{
		"id":          a.ID,
		"tenant_id":   a.TenantID,
		"rule_id":     a.RuleID,
		"rule_name":   a.RuleName,
		"title":       a.Title,
		"description": a.Description,
		"severity":    a.Severity,
		"confidence":  a.Confidence,
		"status":      a.Status,
		"tags":        a.Tags,
		"source": map[string]interface{}{
			"type":     a.Source.Type,
			"engine":   a.Source.Engine,
			"hostname": a.Source.Hostname,
			"ips":      a.Source.IPs,
			"users":    a.Source.Users,
		},
	}
}

func getNestedValue(data map[string]interface{}, path string) (interface{}, bool) {
	parts := splitDots(path)
	var current interface{} = data

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func splitDots(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

// matchCondition evaluates a single (possibly compound) condition against
// alert field data.
func matchCondition(cond *playbook.Condition, data map[string]interface{}) bool {
	if len(cond.And) > 0 {
		for _, sub := range cond.And {
			if !matchCondition(&sub, data) {
				return false
			}
		}
		return true
	}
	if len(cond.Or) > 0 {
		for _, sub := range cond.Or {
			if matchCondition(&sub, data) {
				return true
			}
		}
		return false
	}

	value, found := getNestedValue(data, cond.Field)

	switch cond.Operator {
	case playbook.OpExists:
		return found
	case playbook.OpNotExists:
		return !found
	}

	if !found {
		return false
	}

	switch cond.Operator {
	case playbook.OpEquals:
		return compareEquals(value, cond.Value)
	case playbook.OpNotEquals:
		return !compareEquals(value, cond.Value)
	case playbook.OpContains:
		return contains(value, cond.Value)
	case playbook.OpNotContains:
		return !contains(value, cond.Value)
	case playbook.OpStartsWith:
		return hasAffix(value, cond.Value, strings.HasPrefix)
	case playbook.OpEndsWith:
		return hasAffix(value, cond.Value, strings.HasSuffix)
	case playbook.OpMatches:
		return matchesRegex(value, cond.Value)
	case playbook.OpIn:
		return inList(value, cond.Value)
	case playbook.OpNotIn:
		return !inList(value, cond.Value)
	case playbook.OpGreaterThan:
		return compareNumeric(value, cond.Value, ">")
	case playbook.OpLessThan:
		return compareNumeric(value, cond.Value, "<")
	case playbook.OpGreaterOrEqual:
		return compareNumeric(value, cond.Value, ">=")
	case playbook.OpLessOrEqual:
		return compareNumeric(value, cond.Value, "<=")
	default:
		return false
	}
}

func compareEquals(value, expected interface{}) bool {
	if vs, ok := value.(string); ok {
		if es, ok := expected.(string); ok {
			return strings.EqualFold(vs, es)
		}
	}
	return value == expected
}

func contains(value, substr interface{}) bool {
	vs, ok := value.(string)
	ss, ok2 := substr.(string)
	return ok && ok2 && strings.Contains(strings.ToLower(vs), strings.ToLower(ss))
}

func hasAffix(value, affix interface{}, fn func(string, string) bool) bool {
	vs, ok := value.(string)
	as, ok2 := affix.(string)
	return ok && ok2 && fn(strings.ToLower(vs), strings.ToLower(as))
}

func matchesRegex(value, pattern interface{}) bool {
	vs, ok := value.(string)
	ps, ok2 := pattern.(string)
	if !ok || !ok2 {
		return false
	}
	re, err := regexp.Compile(ps)
	if err != nil {
		return false
	}
	return re.MatchString(vs)
}

func inList(value, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEquals(value, item) {
			return true
		}
	}
	return false
}

func compareNumeric(value, expected interface{}, op string) bool {
	v, ok := toFloat64(value)
	e, ok2 := toFloat64(expected)
	if !ok || !ok2 {
		return false
	}
	switch op {
	case ">":
		return v > e
	case "<":
		return v < e
	case ">=":
		return v >= e
	case "<=":
		return v <= e
	default:
		return false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
