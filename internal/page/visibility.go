package page

import "strings"

// skipTags are never read aloud nor displayed.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

// chromeTags extends skipTags with page furniture that hover reading ignores.
var chromeTags = func() map[string]bool {
	m := map[string]bool{"nav": true, "header": true, "footer": true}
	for k := range skipTags {
		m[k] = true
	}
	return m
}()

// hidden reports whether an element is not rendered.
func hidden(n *Node) bool {
	if n.Attrs == nil {
		return false
	}
	if _, ok := n.Attrs["hidden"]; ok {
		return true
	}
	if strings.EqualFold(n.Attrs["aria-hidden"], "true") {
		return true
	}
	style, ok := n.Attrs["style"]
	if !ok {
		return false
	}
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch {
		case prop == "display" && val == "none":
			return true
		case prop == "visibility" && (val == "hidden" || val == "collapse"):
			return true
		case prop == "opacity" && (val == "0" || val == "0.0" || val == ".0"):
			return true
		}
	}
	return false
}
