// Package yamltojson renders yaml.v3 node trees as JSON so that YAML
// documents can be checked against a JSON schema.
package yamltojson

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// The YAML 1.1 spellings of the boolean values. The !!bool tag alone does
// not say which of the two a scalar is.
var (
	yamlTrue  = regexp.MustCompile(`^(y|Y|yes|Yes|YES|true|True|TRUE|on|On|ON)$`)
	yamlFalse = regexp.MustCompile(`^(n|N|no|No|NO|false|False|FALSE|off|Off|OFF)$`)
)

// Encode writes the JSON equivalent of the YAML node tree rooted at n.
//
// Key order follows the document, including keys that arrive through `<<`
// merges. Aliases are followed, with merge precedence per the YAML spec:
// keys already present in a mapping win over merged ones, and earlier
// merges win over later ones. Scalars are canonicalised (decimal integers,
// bare true/false, null); a scalar used as a mapping key is rendered as a
// quoted string, which is also the only representation for NaN and the
// infinities. A nil n writes nothing. An alias cycle through a value is an
// error; a cycle through merges terminates, since a mapping is merged at
// most once.
func Encode(out io.Writer, n *yaml.Node) error {
	e := &encoder{out: out, seen: make(map[*yaml.Node]bool)}
	return e.node(n)
}

type encoder struct {
	out io.Writer

	// Nodes on the path from the root to the node currently being encoded.
	// An alias pointing back at any of them cannot terminate.
	seen map[*yaml.Node]bool
}

func (e *encoder) write(s string) error {
	_, err := io.WriteString(e.out, s)
	return err
}

func (e *encoder) node(n *yaml.Node) error {
	if n == nil {
		return nil
	}

	if e.seen[n] {
		return fmt.Errorf("line %d, col %d: infinite recursion", n.Line, n.Column)
	}
	e.seen[n] = true
	// The same anchor may be aliased from several sibling subtrees, so a
	// node is only off-limits while its own subtree is still encoding.
	defer delete(e.seen, n)

	switch n.Kind {
	case yaml.DocumentNode:
		// Usually one element, but comma-separate any extras.
		for i, c := range n.Content {
			if i > 0 {
				if err := e.write(","); err != nil {
					return err
				}
			}
			if err := e.node(c); err != nil {
				return err
			}
		}
		return nil

	case yaml.MappingNode:
		return e.mapping(n)

	case yaml.SequenceNode:
		if err := e.write("["); err != nil {
			return err
		}
		for i, c := range n.Content {
			if i > 0 {
				if err := e.write(","); err != nil {
					return err
				}
			}
			if err := e.node(c); err != nil {
				return err
			}
		}
		return e.write("]")

	case yaml.ScalarNode:
		v, err := scalarValue(n)
		if err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = e.out.Write(b)
		return err

	case yaml.AliasNode:
		return e.node(n.Alias)

	default:
		return fmt.Errorf("line %d, col %d: unsupported node kind %x", n.Line, n.Column, n.Kind)
	}
}

func (e *encoder) mapping(n *yaml.Node) error {
	if err := e.write("{"); err != nil {
		return err
	}
	first := true
	err := eachPair(make(map[*yaml.Node]bool), n, func(k string, v *yaml.Node) error {
		if !first {
			if err := e.write(","); err != nil {
				return err
			}
		}
		first = false

		b, err := json.Marshal(k)
		if err != nil {
			return err
		}
		if _, err := e.out.Write(append(b, ':')); err != nil {
			return err
		}
		return e.node(v)
	})
	if err != nil {
		return err
	}
	return e.write("}")
}

// eachPair yields the key/value pairs of a mapping node in document order,
// resolving `<<` merge keys. A merge value may be an alias to a mapping or
// a sequence of such aliases, and the merged mappings may contain merges of
// their own, so all three node kinds recurse here. A mapping is merged at
// most once, which both avoids redundant work and breaks merge cycles.
func eachPair(visited map[*yaml.Node]bool, n *yaml.Node, f func(key string, val *yaml.Node) error) error {
	if n == nil || visited[n] {
		return nil
	}
	visited[n] = true

	switch n.Kind {
	case yaml.MappingNode:
		// Mapping content is flat: key, value, key, value...
		if len(n.Content)%2 != 0 {
			return fmt.Errorf("line %d, col %d: mapping node has odd content length %d", n.Line, n.Column, len(n.Content))
		}

		// Keys spelled out in this mapping beat any a merge would bring in,
		// and earlier merges beat later ones, while output order still
		// follows the document. So: collect this level's keys first, then
		// walk the pairs again letting merges fill only the gaps.
		keys := make(map[string]bool)
		for i := 0; i < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Tag == "!!merge" {
				continue
			}
			ck, err := keyString(k)
			if err != nil {
				return err
			}
			keys[ck] = true
		}

		fillGaps := func(k string, v *yaml.Node) error {
			if keys[k] {
				return nil
			}
			keys[k] = true
			return f(k, v)
		}

		for i := 0; i < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				if err := eachPair(visited, v, fillGaps); err != nil {
					return err
				}
				continue
			}
			ck, err := keyString(k)
			if err != nil {
				return err
			}
			if err := f(ck, v); err != nil {
				return err
			}
		}
		return nil

	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := eachPair(visited, c, f); err != nil {
				return err
			}
		}
		return nil

	case yaml.AliasNode:
		return eachPair(visited, n.Alias, f)

	default:
		return fmt.Errorf("line %d, col %d: cannot range over node kind %x", n.Line, n.Column, n.Kind)
	}
}

// keyString canonicalises a scalar node for use as a JSON object key. YAML
// considers 0xb and 11 the same key; JSON keys are strings, so both become
// "11".
func keyString(n *yaml.Node) (string, error) {
	v, err := scalarValue(n)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("line %d, col %d: null not supported as a map key", n.Line, n.Column)
	}
	switch n.Tag {
	case "!!bool":
		return fmt.Sprintf("%t", v), nil
	case "!!int":
		return fmt.Sprintf("%d", v), nil
	case "!!float":
		// NaN and the infinities come out as words, which is the point:
		// quoted is the only way JSON can carry them.
		return fmt.Sprintf("%e", v), nil
	default:
		return n.Value, nil
	}
}

// scalarValue parses a scalar node into the Go value whose
// encoding/json.Marshal output is the canonical JSON form.
func scalarValue(n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d, col %d: non-scalar node not supported here (kind = %x, want %x)", n.Line, n.Column, n.Kind, yaml.ScalarNode)
	}
	switch n.Tag {
	case "!!null":
		return nil, nil

	case "!!bool":
		switch {
		case yamlTrue.MatchString(n.Value):
			return true, nil
		case yamlFalse.MatchString(n.Value):
			return false, nil
		default:
			return "", fmt.Errorf("line %d, col %d: %q is not a valid YAML bool value", n.Line, n.Column, n.Value)
		}

	case "!!int":
		// Base 0 covers decimal, hex, octal and binary spellings.
		x, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return "", fmt.Errorf("line %d, col %d: %q is not a supported int value", n.Line, n.Column, n.Value)
		}
		return x, nil

	case "!!float":
		// The YAML spellings ParseFloat does not know.
		switch n.Value {
		case ".nan":
			return math.NaN(), nil
		case "-.inf":
			return math.Inf(-1), nil
		case ".inf", "+.inf":
			return math.Inf(1), nil
		}
		x, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return "", fmt.Errorf("line %d, col %d: %q is not a supported float value", n.Line, n.Column, n.Value)
		}
		return x, nil

	default:
		// Strings and anything else are already canonical in n.Value.
		return n.Value, nil
	}
}
