package urlcodec

import (
	"fmt"
	"net/url"
	"strings"
)

type segment struct {
	name     string
	param    bool
	optional bool
}

// pathTemplate is a compiled route pattern such as
// "/main/:context/:pageEntityType/:pageEntityId?". Parameters bind one path
// segment each and a trailing "?" makes them optional.
type pathTemplate struct {
	raw  string
	segs []segment
}

func compileTemplate(raw string) (pathTemplate, error) {
	if !strings.HasPrefix(raw, "/") {
		return pathTemplate{}, fmt.Errorf("template %q: must start with /", raw)
	}
	t := pathTemplate{raw: raw}
	for _, part := range splitPath(raw) {
		if !strings.HasPrefix(part, ":") {
			t.segs = append(t.segs, segment{name: part})
			continue
		}
		name := strings.TrimPrefix(part, ":")
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		if name == "" {
			return pathTemplate{}, fmt.Errorf("template %q: empty parameter name", raw)
		}
		t.segs = append(t.segs, segment{name: name, param: true, optional: optional})
	}
	return t, nil
}

func mustCompile(raw string) pathTemplate {
	t, err := compileTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t pathTemplate) String() string { return t.raw }

func (t pathTemplate) empty() bool { return t.raw == "" }

// match binds the decoded path segments to the template parameters.
func (t pathTemplate) match(parts []string) (map[string]string, bool) {
	if t.empty() {
		return nil, false
	}
	params := make(map[string]string)
	i := 0
	for _, seg := range t.segs {
		if i >= len(parts) {
			if seg.param && seg.optional {
				continue
			}
			return nil, false
		}
		if !seg.param {
			if parts[i] != seg.name {
				return nil, false
			}
			i++
			continue
		}
		params[seg.name] = parts[i]
		i++
	}
	if i != len(parts) {
		return nil, false
	}
	return params, true
}

// expand renders the template. Optional parameters may only be left out at
// the tail; a value after a gap cannot be placed and fails the expansion.
func (t pathTemplate) expand(params map[string]string) (string, error) {
	var b strings.Builder
	gap := ""
	for _, seg := range t.segs {
		if !seg.param {
			if gap != "" {
				return "", fmt.Errorf("template %s: literal %q after missing :%s", t.raw, seg.name, gap)
			}
			b.WriteString("/")
			b.WriteString(seg.name)
			continue
		}
		v := params[seg.name]
		if v == "" {
			if !seg.optional {
				return "", fmt.Errorf("template %s: missing :%s", t.raw, seg.name)
			}
			if gap == "" {
				gap = seg.name
			}
			continue
		}
		if gap != "" {
			return "", fmt.Errorf("template %s: :%s set after missing :%s", t.raw, seg.name, gap)
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(v))
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

func (t pathTemplate) hasParam(name string) bool {
	for _, seg := range t.segs {
		if seg.param && seg.name == name {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// decodePath splits an escaped pathname into decoded segments. Segments that
// fail to decode are kept verbatim.
func decodePath(pathname string) []string {
	parts := splitPath(pathname)
	for i, part := range parts {
		if v, err := url.PathUnescape(part); err == nil {
			parts[i] = v
		}
	}
	return parts
}
