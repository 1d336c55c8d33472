package workflow

import (
	"fmt"
	"maps"
	"reflect"
	"strings"

	"mcptape/internal/errdefs"
	"mcptape/internal/mapping"
)

// Built-in custom node types.
const (
	TypeRetryHandler      = "retry_handler"
	TypeErrorHandler      = "error_handler"
	TypeConditionalRouter = "conditional_router"
	TypeFieldRouter       = "field_router"
	TypeRuleValidator     = "rule_validator"
	TypeFieldTransform    = "field_transform"
)

func registerBuiltins(f *NodeFactory) {
	f.mustRegister(TypeRetryHandler, newRetryHandler, "RetryHandler")
	f.mustRegister(TypeErrorHandler, newErrorHandler, "ErrorHandler")
	f.mustRegister(TypeConditionalRouter, newConditionalRouter, "ConditionalRouter")
	f.mustRegister(TypeFieldRouter, newFieldRouter, "FieldRouter")
	f.mustRegister(TypeRuleValidator, newRuleValidator, "RuleValidator")
	f.mustRegister(TypeFieldTransform, newFieldTransform, "FieldTransform")
}

// retry_handler routes "retry" while retry_count < max_attempts.
func newRetryHandler(name string, params map[string]any) (Node, error) {
	maxAttempts, err := paramInt(params, "max_attempts", 3)
	if err != nil {
		return nil, err
	}
	validate := func(input any) (string, error) {
		data, err := objectInput(input)
		if err != nil {
			return "", err
		}
		count, _ := toFloat(data["retry_count"])
		if int(count) < maxAttempts {
			return "retry", nil
		}
		return "max_retries", nil
	}
	return NewValidationStep(name, validate, []string{"retry", "max_retries"}, ""), nil
}

// error_handler routes on error.type.
func newErrorHandler(name string, _ map[string]any) (Node, error) {
	validate := func(input any) (string, error) {
		data, err := objectInput(input)
		if err != nil {
			return "", err
		}
		errType, _ := lookup(data, "error.type")
		switch errType {
		case "TimeoutError", "ConnectionError":
			return "retry", nil
		case "ValidationError", "SchemaError":
			return "skip", nil
		default:
			return "fatal", nil
		}
	}
	return NewValidationStep(name, validate, []string{"retry", "skip", "fatal"}, ""), nil
}

// conditional_router routes on confidence and priority.
func newConditionalRouter(name string, _ map[string]any) (Node, error) {
	route := func(input any) (string, error) {
		data, err := objectInput(input)
		if err != nil {
			return "", err
		}
		confidence := 0.5
		if v, ok := data["confidence"]; ok {
			if f, ok := toFloat(v); ok {
				confidence = f
			}
		}
		priority := "medium"
		if s, ok := data["priority"].(string); ok {
			priority = s
		}

		switch {
		case confidence < 0.3:
			return "low_confidence", nil
		case priority == "urgent":
			return "high", nil
		case priority == "normal":
			return "medium", nil
		default:
			return "low", nil
		}
	}
	return NewRoutingStep(name, route), nil
}

// field_router routes on the value of one field.
func newFieldRouter(name string, params map[string]any) (Node, error) {
	field, err := paramString(params, "field", "")
	if err != nil {
		return nil, err
	}
	if field == "" {
		return nil, errdefs.Configurationf("node %s: field_router needs a field param", name)
	}
	defaultRoute, err := paramString(params, "default_route", DefaultRoute)
	if err != nil {
		return nil, err
	}
	route := func(input any) (string, error) {
		data, err := objectInput(input)
		if err != nil {
			return "", err
		}
		v, ok := lookup(data, field)
		if !ok || v == nil {
			return defaultRoute, nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return NewRoutingStep(name, route), nil
}

type rule struct {
	field    string
	equals   any
	hasEqual bool
	exists   bool
	notEmpty bool
	route    string
}

func (r rule) matches(data map[string]any) bool {
	v, ok := lookup(data, r.field)
	switch {
	case r.hasEqual:
		return ok && valuesEqual(v, r.equals)
	case r.notEmpty:
		return ok && !isEmpty(v)
	default:
		return ok
	}
}

// rule_validator returns the route of the first matching rule.
func newRuleValidator(name string, params map[string]any) (Node, error) {
	rawRules, ok := params["rules"].([]any)
	if !ok || len(rawRules) == 0 {
		return nil, errdefs.Configurationf("node %s: rule_validator needs a non-empty rules list", name)
	}
	defaultRoute, err := paramString(params, "default_route", DefaultRoute)
	if err != nil {
		return nil, err
	}

	rules := make([]rule, 0, len(rawRules))
	for i, raw := range rawRules {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, errdefs.Configurationf("node %s: rule %d is not a mapping", name, i+1)
		}
		r := rule{}
		r.field, _ = m["field"].(string)
		r.route, _ = m["route"].(string)
		if r.field == "" || r.route == "" {
			return nil, errdefs.Configurationf("node %s: rule %d needs field and route", name, i+1)
		}
		r.equals, r.hasEqual = m["equals"]
		r.exists, _ = m["exists"].(bool)
		r.notEmpty, _ = m["not_empty"].(bool)
		if !r.hasEqual && !r.exists && !r.notEmpty {
			return nil, errdefs.Configurationf("node %s: rule %d needs one of equals, exists or not_empty", name, i+1)
		}
		rules = append(rules, r)
	}

	validate := func(input any) (string, error) {
		data, err := objectInput(input)
		if err != nil {
			return "", err
		}
		for _, r := range rules {
			if r.matches(data) {
				return r.route, nil
			}
		}
		return defaultRoute, nil
	}
	return NewValidationStep(name, validate, nil, defaultRoute), nil
}

// field_transform picks, renames and sets fields, in that order.
func newFieldTransform(name string, params map[string]any) (Node, error) {
	pick, err := paramStrings(params, "pick")
	if err != nil {
		return nil, err
	}
	rename := map[string]string{}
	if raw, ok := params["rename"].(map[string]any); ok {
		for from, to := range raw {
			s, ok := to.(string)
			if !ok {
				return nil, errdefs.Configurationf("node %s: rename target for %s must be a string", name, from)
			}
			rename[from] = s
		}
	}
	set, _ := params["set"].(map[string]any)
	next, err := paramString(params, "next", DefaultRoute)
	if err != nil {
		return nil, err
	}

	transform := func(input any) (any, error) {
		data, err := objectInput(input)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(data))
		if pick != nil {
			for _, k := range pick {
				if v, ok := data[k]; ok {
					out[k] = v
				}
			}
		} else {
			maps.Copy(out, data)
		}
		for from, to := range rename {
			if v, ok := out[from]; ok {
				delete(out, from)
				out[to] = v
			}
		}
		maps.Copy(out, set)
		return out, nil
	}
	return NewTransformStep(name, transform, next), nil
}

// objectInput flattens protocol responses and custom node envelopes into a
// plain object.
func objectInput(input any) (map[string]any, error) {
	data, ok := mapping.Normalize(input).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object input, got %T", input)
	}
	return data, nil
}

// lookup resolves a dotted path such as "error.type".
func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func paramInt(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, errdefs.Configurationf("param %s must be an integer, got %v", key, v)
	}
	return int(f), nil
}

func paramString(params map[string]any, key, def string) (string, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errdefs.Configurationf("param %s must be a string, got %v", key, v)
	}
	return s, nil
}

func paramStrings(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errdefs.Configurationf("param %s must be a list", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errdefs.Configurationf("param %s must contain strings, got %v", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}
