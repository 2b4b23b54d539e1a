// Package predicate evaluates MongoDB-like query predicates against
// decoded JSON documents, used for both Base.Query/Count and subscription
// matching.
package predicate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Predicate is a field -> condition mapping, e.g. {"age": {"$gte": 18}}.
type Predicate map[string]interface{}

// Canonical returns a stable serialization of p that does not depend on
// key order, so identical predicates serialize to the same string.
func Canonical(p Predicate) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]interface{}, len(p))
	for _, k := range keys {
		ordered[k] = p[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		// Unmarshalable values can't occur in practice: predicates come
		// from decoded JSON, so marshal back to JSON never fails.
		return fmt.Sprintf("%v", ordered)
	}
	return string(b)
}

// Match reports whether doc satisfies every field condition in p. A
// missing field yields a nil value, which only $ne and $nin may match.
func Match(doc map[string]interface{}, p Predicate) bool {
	for field, cond := range p {
		if !evaluate(doc[field], cond) {
			return false
		}
	}
	return true
}

func evaluate(value interface{}, cond interface{}) bool {
	ops, ok := cond.(map[string]interface{})
	if !ok {
		return equal(value, cond)
	}

	for op, operand := range ops {
		if !evalOp(value, op, operand) {
			return false
		}
	}
	return true
}

func evalOp(value interface{}, op string, operand interface{}) bool {
	switch op {
	case "$eq":
		return equal(value, operand)
	case "$ne":
		return !equal(value, operand)
	case "$lt":
		c, ok := compare(value, operand)
		return ok && c < 0
	case "$lte":
		c, ok := compare(value, operand)
		return ok && c <= 0
	case "$gt":
		c, ok := compare(value, operand)
		return ok && c > 0
	case "$gte":
		c, ok := compare(value, operand)
		return ok && c >= 0
	case "$in":
		return member(value, operand)
	case "$nin":
		return !member(value, operand)
	case "$regex":
		return matchRegex(value, operand)
	case "$sw":
		return startsWith(value, operand)
	default:
		// BadPredicate: unknown operator never matches.
		return false
	}
}

func equal(a, b interface{}) bool {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		return an == bn
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && sameKind(a, b)
}

func sameKind(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aIsNum := toFloat(a)
	_, bIsNum := toFloat(b)
	if aIsNum != bIsNum {
		return false
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr != bIsStr {
		return false
	}
	if aIsStr && bIsStr {
		return as == bs
	}
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool != bIsBool {
		return false
	}
	if aIsBool && bIsBool {
		return ab == bb
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// compare returns -1/0/1 comparing a to b numerically or lexicographically,
// and false if the two values aren't comparable.
func compare(a, b interface{}) (int, bool) {
	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func member(value interface{}, operand interface{}) bool {
	list, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if equal(value, item) {
			return true
		}
	}
	return false
}

func matchRegex(value interface{}, operand interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	source, ok := operand.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func startsWith(value interface{}, operand interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	prefix, ok := operand.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, prefix)
}
