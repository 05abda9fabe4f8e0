package gee

import (
	"net/http"
	"sort"
	"strings"
)

type HandlerFunc func(*Context)

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string
	Pattern string
}

type router struct {
	roots    map[string]*node         // per method
	handlers map[string][]HandlerFunc // key: "GET-/api/links/:id"
}

func newRouter() *router {
	return &router{
		handlers: make(map[string][]HandlerFunc),
		roots:    make(map[string]*node),
	}
}

func routeKey(method, pattern string) string {
	return method + "-" + pattern
}

// parsePattern drops empty segments and everything after a catch-all.
func parsePattern(pattern string) []string {
	parts := splitPath(pattern)
	for i, p := range parts {
		if p[0] == '*' {
			return parts[:i+1]
		}
	}
	return parts
}

func (r *router) addRoute(method string, pattern string, handlers ...HandlerFunc) {
	if len(handlers) == 0 {
		panic("gee: addRoute requires at least one handler")
	}
	if !strings.HasPrefix(pattern, "/") {
		panic("gee: pattern must begin with '/': " + pattern)
	}
	root, ok := r.roots[method]
	if !ok {
		root = &node{}
		r.roots[method] = root
	}
	root.insert(pattern, parsePattern(pattern), 0)
	r.handlers[routeKey(method, pattern)] = append([]HandlerFunc(nil), handlers...)
}

func (r *router) getRoute(method string, path string) (*node, map[string]string) {
	root, ok := r.roots[method]
	if !ok {
		return nil, nil
	}
	searchParts := splitPath(path)
	n := root.search(searchParts, 0)
	if n == nil {
		return nil, nil
	}

	var params map[string]string
	for i, part := range parsePattern(n.pattern) {
		switch kindOf(part) {
		case paramSegment:
			if params == nil {
				params = make(map[string]string)
			}
			params[part[1:]] = searchParts[i]
		case catchAllSegment:
			if params == nil {
				params = make(map[string]string)
			}
			params[part[1:]] = strings.Join(searchParts[i:], "/")
		}
	}
	return n, params
}

// match finds the route for method, answering HEAD with the GET route when
// no HEAD route exists. It returns the method whose handlers apply.
func (r *router) match(method, path string) (*node, map[string]string, string) {
	n, params := r.getRoute(method, path)
	if n == nil && method == http.MethodHead {
		n, params = r.getRoute(http.MethodGet, path)
		method = http.MethodGet
	}
	return n, params, method
}

func (r *router) handle(c *Context) {
	n, params, method := r.match(c.Method, c.Path)
	if n != nil {
		c.Params = params
		c.RoutePattern = n.pattern
		c.handlers = append(c.handlers, r.handlers[routeKey(method, n.pattern)]...)
	} else {
		allow := r.AllowedMethod(c.Path)
		if len(allow) == 0 {
			c.handlers = append(c.handlers, c.engine.noRoute...)
		} else {
			c.SetHeader("Allow", strings.Join(allow, ","))
			c.handlers = append(c.handlers, c.engine.noMethod...)
		}
	}
	c.Next()
}

func (r *router) AllowedMethod(path string) (allow []string) {
	hasHead := false
	for method := range r.roots {
		if n, _ := r.getRoute(method, path); n != nil {
			allow = append(allow, method)
			hasHead = hasHead || method == http.MethodHead
		}
	}
	if !hasHead {
		for _, m := range allow {
			if m == http.MethodGet {
				allow = append(allow, http.MethodHead)
				break
			}
		}
	}
	sort.Strings(allow)
	return allow
}

func (r *router) routes() []RouteInfo {
	var out []RouteInfo
	for method, root := range r.roots {
		for _, p := range root.patterns(nil) {
			out = append(out, RouteInfo{Method: method, Pattern: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}
