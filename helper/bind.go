package helper

import (
	"fmt"
	"strings"
)

// BindNamedParameters replaces :name markers in sqlText with placeholders rendered by ph
// and returns the arguments in placeholder order.
// If binds is not empty only those names are treated as markers.
// Markers inside quoted literals and "::" casts are left alone.
func BindNamedParameters(sqlText string, binds []string, lookup func(name string) (interface{}, bool), ph func(n int) string) (string, []interface{}, error) {
	allowed := make(map[string]bool, len(binds))
	for _, b := range binds {
		allowed[strings.ToUpper(b)] = true
	}
	var (
		out   strings.Builder
		args  []interface{}
		quote rune
	)
	r := []rune(sqlText)
	for i := 0; i < len(r); i++ {
		ch := r[i]
		if quote != 0 { // if we are inside a literal...
			out.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
			out.WriteRune(ch)
			continue
		}
		if ch != ':' {
			out.WriteRune(ch)
			continue
		}
		if i+1 < len(r) && r[i+1] == ':' { // if this is a cast...
			out.WriteString("::")
			i++
			continue
		}
		j := i + 1
		for j < len(r) && isNameRune(r[j], j == i+1) {
			j++
		}
		name := string(r[i+1 : j])
		if name == "" || (len(allowed) > 0 && !allowed[strings.ToUpper(name)]) {
			out.WriteRune(ch)
			continue
		}
		v, ok := lookup(name)
		if !ok {
			return "", nil, fmt.Errorf("no value for bind variable :%v", name)
		}
		args = append(args, v)
		out.WriteString(ph(len(args)))
		i = j - 1
	}
	return out.String(), args, nil
}

func isNameRune(c rune, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
