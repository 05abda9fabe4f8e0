package gee

import (
	"fmt"
	"strings"
)

type segmentKind uint8

// 优先级：静态 > :param > *catchAll
const (
	staticSegment segmentKind = iota
	paramSegment
	catchAllSegment
)

func kindOf(part string) segmentKind {
	switch part[0] {
	case ':':
		return paramSegment
	case '*':
		return catchAllSegment
	}
	return staticSegment
}

// node is one path segment of the routing trie. Children stay sorted by
// segmentKind, so "/healthz" is tried before "/:slug" whichever was
// registered first.
type node struct {
	pattern  string // 完整路由，只有路由终点非空
	part     string
	kind     segmentKind
	children []*node
}

func (n *node) child(part string) *node {
	for _, c := range n.children {
		if c.part == part {
			return c
		}
	}
	return nil
}

func (n *node) addChild(c *node) {
	i := len(n.children)
	for i > 0 && n.children[i-1].kind > c.kind {
		i--
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
}

// insert panics when a wildcard segment would shadow a sibling wildcard
// with another name ("/:slug" next to "/:id"); the lookup could only ever
// reach one of them.
func (n *node) insert(pattern string, parts []string, height int) {
	if len(parts) == height {
		n.pattern = pattern
		return
	}
	part := parts[height]
	kind := kindOf(part)
	if kind != staticSegment {
		if len(part) == 1 {
			panic(fmt.Sprintf("gee: unnamed wildcard in %q", pattern))
		}
		for _, c := range n.children {
			if c.kind == kind && c.part != part {
				panic(fmt.Sprintf("gee: %s in %q conflicts with %s", part, pattern, c.part))
			}
		}
	}
	c := n.child(part)
	if c == nil {
		c = &node{part: part, kind: kind}
		n.addChild(c)
	}
	c.insert(pattern, parts, height+1)
}

// search tries children in priority order and backtracks: "/api" has a
// static branch with no route of its own, so it falls through to "/:slug".
func (n *node) search(parts []string, height int) *node {
	if n.kind == catchAllSegment {
		return n
	}
	if len(parts) == height {
		if n.pattern == "" {
			return nil
		}
		return n
	}
	part := parts[height]
	for _, c := range n.children {
		if c.kind == staticSegment && c.part != part {
			continue
		}
		if found := c.search(parts, height+1); found != nil {
			return found
		}
	}
	return nil
}

func (n *node) patterns(out []string) []string {
	if n.pattern != "" {
		out = append(out, n.pattern)
	}
	for _, c := range n.children {
		out = c.patterns(out)
	}
	return out
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}
