// Package route maps logical REST operations to rate limit bucket identities.
package route

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownRoute is returned when a template is not registered in the catalog.
	ErrUnknownRoute = errors.New("unknown route template")
	// ErrMissingParam is returned when a template placeholder has no value.
	ErrMissingParam = errors.New("missing route parameter")
)

// Params holds placeholder values keyed by placeholder name (e.g. "guild.id").
type Params map[string]string

// Route describes one logical REST operation.
type Route struct {
	Name     string `yaml:"name" json:"name"`
	Method   string `yaml:"method" json:"method"`
	Template string `yaml:"template" json:"template"`
	Major    string `yaml:"major,omitempty" json:"major,omitempty"`
}

// Key identifies the bucket a request belongs to.
//
// Requests sharing a Key serialize through the same bucket regardless of
// minor parameters.
type Key struct {
	Method   string
	Template string
	Major    string
}

// String renders the key as "METHOD template" with the major value appended.
func (k Key) String() string {
	base := k.Method + " " + k.Template
	if k.Major == "" {
		return base
	}
	return base + ":" + k.Major
}

// Catalog indexes routes by name and by method+template.
type Catalog struct {
	mu         sync.RWMutex
	byName     map[string]Route
	byTemplate map[string]Route
}

// NewCatalog builds a catalog from the given routes.
func NewCatalog(routes ...Route) (*Catalog, error) {
	c := &Catalog{
		byName:     make(map[string]Route, len(routes)),
		byTemplate: make(map[string]Route, len(routes)),
	}
	if err := c.Register(routes...); err != nil {
		return nil, err
	}
	return c, nil
}

// Register adds routes, replacing any existing entry with the same name.
func (c *Catalog) Register(routes ...Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range routes {
		normalized, err := normalize(r)
		if err != nil {
			return err
		}
		if old, ok := c.byName[normalized.Name]; ok {
			delete(c.byTemplate, templateKey(old.Method, old.Template))
		}
		c.byName[normalized.Name] = normalized
		c.byTemplate[templateKey(normalized.Method, normalized.Template)] = normalized
	}
	return nil
}

// Lookup returns the route registered under name.
func (c *Catalog) Lookup(name string) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byName[strings.TrimSpace(name)]
	return r, ok
}

// Routes returns all routes sorted by name.
func (c *Catalog) Routes() []Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	routes := make([]Route, 0, len(c.byName))
	for _, r := range c.byName {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}

// Resolve derives the bucket key for a request on template.
func (c *Catalog) Resolve(method, template string, params Params) (Key, error) {
	c.mu.RLock()
	r, ok := c.byTemplate[templateKey(method, template)]
	c.mu.RUnlock()
	if !ok {
		return Key{}, fmt.Errorf("%w: %s %s", ErrUnknownRoute, strings.ToUpper(method), template)
	}
	return r.Key(params)
}

// MustResolve is Resolve for statically known templates; it panics on an
// unknown template or missing major parameter.
func (c *Catalog) MustResolve(method, template string, params Params) Key {
	key, err := c.Resolve(method, template, params)
	if err != nil {
		panic(err)
	}
	return key
}

// Key derives the bucket key for this route.
func (r Route) Key(params Params) (Key, error) {
	key := Key{Method: r.Method, Template: r.Template}
	if r.Major == "" {
		return key, nil
	}
	value := strings.TrimSpace(params[r.Major])
	if value == "" {
		return Key{}, fmt.Errorf("%w: %s for %s", ErrMissingParam, r.Major, r.Name)
	}
	key.Major = value
	return key, nil
}

// Path substitutes params into the route template.
func (r Route) Path(params Params) (string, error) {
	return Expand(r.Template, params)
}

// Expand substitutes every {placeholder} in template with its escaped value.
func Expand(template string, params Params) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", template)
		}
		name := rest[open+1 : open+closing]
		value, ok := params[name]
		if !ok || value == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		rest = rest[open+closing+1:]
	}
}

// Match reports whether path is an instance of template and returns the
// extracted placeholder values.
func Match(template, path string) (Params, bool) {
	tParts := strings.Split(strings.Trim(template, "/"), "/")
	pParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(tParts) != len(pParts) {
		return nil, false
	}

	params := Params{}
	for i, part := range tParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			value, err := url.PathUnescape(pParts[i])
			if err != nil || value == "" {
				return nil, false
			}
			params[part[1:len(part)-1]] = value
			continue
		}
		if part != pParts[i] {
			return nil, false
		}
	}
	return params, true
}

// Find returns the route and params matching an incoming method and path.
func (c *Catalog) Find(method, path string) (Route, Params, bool) {
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, r := range c.Routes() {
		if r.Method != method {
			continue
		}
		if params, ok := Match(r.Template, path); ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

func normalize(r Route) (Route, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.Template = strings.TrimSpace(r.Template)
	r.Major = strings.TrimSpace(r.Major)

	switch {
	case r.Name == "":
		return Route{}, errors.New("route name is required")
	case r.Template == "" || !strings.HasPrefix(r.Template, "/"):
		return Route{}, fmt.Errorf("route %s: template must start with /", r.Name)
	}

	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return Route{}, fmt.Errorf("route %s: unsupported method %q", r.Name, r.Method)
	}

	if r.Major != "" && !strings.Contains(r.Template, "{"+r.Major+"}") {
		return Route{}, fmt.Errorf("route %s: major parameter %s not in template", r.Name, r.Major)
	}
	return r, nil
}

func templateKey(method, template string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(template)
}
