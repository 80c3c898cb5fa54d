// Package status serves the /statusz diagnostics page: a human-readable
// snapshot of what the running gate is doing, assembled from items that the
// phases and loops register while they work.
//
// The item tree follows context lineage. Registering an item on a context
// parents it to whichever item that context descends from, so a probe loop
// shows up nested under its phase. The idea is borrowed from Google's
// internal /statusz pages; a public cousin lives at
// https://github.com/youtube/doorman/blob/master/go/status/status.go
package status

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"maps"
	"net/http"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kubegate/kubegate/version"
)

//go:embed status.html.tmpl
var pageTmplSrc string

const errorTmplSrc = `<div class="error">❌ {{.Operation}}: <code>{{.Error}}</code>
<pre>{{.Item | printJSON}}</pre>
</div>`

var (
	funcMap = template.FuncMap{
		"printJSON": printJSON,
		"subItems":  subItems,
	}

	// Parse errors surface through the smoke tests rather than a
	// template.Must panic in init.
	pageTmpl, _  = template.New("status").Funcs(funcMap).Parse(pageTmplSrc)
	errorTmpl, _ = template.New("item-error").Funcs(funcMap).Parse(errorTmplSrc)

	root = newNode(nil)

	startTime = time.Now()

	// Collected once at startup. The page is best effort, so lookup
	// failures degrade to placeholders instead of erroring the page.
	hostname, _ = os.Hostname()
	exePath, _  = os.Executable()
	username    = func() string {
		u, err := user.Current()
		if err != nil {
			return fmt.Sprintf("unknown (%v)", err)
		}
		return fmt.Sprintf("%s (uid=%s)", u.Username, u.Uid)
	}()
)

// node is one entry in the item tree. Rendering is a closure, so the plain
// and templated item flavors share a single type.
type node struct {
	mu       sync.RWMutex
	children map[string]*node
	render   func(context.Context) template.HTML
}

func newNode(render func(context.Context) template.HTML) *node {
	if render == nil {
		render = func(context.Context) template.HTML { return "" }
	}
	return &node{
		children: make(map[string]*node),
		render:   render,
	}
}

func (n *node) attach(title string, child *node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[title] = child
}

func (n *node) detach(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, title)
}

// Items returns a copy of the child items. Called by the page template.
func (n *node) Items() map[string]*node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return maps.Clone(n.children)
}

// Eval renders the item body. Called by the page template.
func (n *node) Eval(ctx context.Context) template.HTML {
	return n.render(ctx)
}

type ctxKey struct{}

// nodeFrom returns the item a context descends from, or the tree root.
func nodeFrom(ctx context.Context) *node {
	if n, ok := ctx.Value(ctxKey{}).(*node); ok {
		return n
	}
	return root
}

// AddSimpleItem registers a plain-text item on the status page and returns a
// setter for its value. The returned context parents any items registered
// beneath this one, and done removes the item again.
func AddSimpleItem(parent context.Context, title string) (ctx context.Context, setStat func(string), done func()) {
	var (
		mu   sync.Mutex
		stat = "Unknown status"
	)
	n := newNode(func(context.Context) template.HTML {
		mu.Lock()
		defer mu.Unlock()
		return template.HTML(template.HTMLEscapeString(stat))
	})

	p := nodeFrom(parent)
	p.attach(title, n)

	setStat = func(s string) {
		mu.Lock()
		defer mu.Unlock()
		stat = s
	}
	return context.WithValue(parent, ctxKey{}, n), setStat, func() { p.detach(title) }
}

// ItemCallback produces the data an item's template renders on each page
// load.
type ItemCallback = func(context.Context) (any, error)

// AddItem registers a templated item on the status page. Each page load
// calls cb and renders the returned data through tmpl. A malformed template
// still registers; it renders the parse error in place so the problem shows
// up where the item would be.
func AddItem(parent context.Context, title, tmpl string, cb ItemCallback) (context.Context, func()) {
	if cb == nil {
		cb = func(context.Context) (any, error) { return nil, nil }
	}

	t, parseErr := template.New(title).Funcs(funcMap).Parse(tmpl)

	n := newNode(func(ctx context.Context) template.HTML {
		data, err := cb(ctx)
		if err != nil {
			return renderError("Error from item callback", err, data)
		}
		if parseErr != nil {
			return renderError("Could not parse item template", parseErr, data)
		}
		var sb strings.Builder
		if err := t.Execute(&sb, data); err != nil {
			return renderError("Error while executing item template", err, data)
		}
		return template.HTML(sb.String())
	})

	p := nodeFrom(parent)
	p.attach(title, n)

	return context.WithValue(parent, ctxKey{}, n), func() { p.detach(title) }
}

// pageData fills the top of the status page.
type pageData struct {
	Version      string
	Build        string
	Hostname     string
	Username     string
	ExePath      string
	PID          int
	Runtime      string
	NumCPU       int
	NumGoroutine int
	Started      string
	Uptime       time.Duration
	Now          string
	Items        map[string]*node
	Ctx          context.Context
}

type errorData struct {
	Operation string
	Error     error
	Item      any
}

// itemsData carries one level of the item tree through the page template,
// together with the request context its Eval calls need.
type itemsData struct {
	Items map[string]*node
	Ctx   context.Context
}

func subItems(ctx context.Context, items map[string]*node) itemsData {
	return itemsData{Items: items, Ctx: ctx}
}

// Handle serves the status page.
func Handle(w http.ResponseWriter, r *http.Request) {
	data := &pageData{
		Version:      version.Version(),
		Build:        version.BuildNumber(),
		Hostname:     hostname,
		Username:     username,
		ExePath:      exePath,
		PID:          os.Getpid(),
		Runtime:      fmt.Sprintf("%s (%s, %s/%s)", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		Started:      startTime.Format(time.RFC1123),
		Uptime:       time.Since(startTime).Truncate(time.Second),
		Now:          time.Now().Format(time.RFC1123),
		Items:        root.Items(),
		Ctx:          r.Context(),
	}

	if err := pageTmpl.Execute(w, data); err != nil {
		_ = errorTmpl.Execute(w, errorData{
			Operation: "Error while executing main template",
			Error:     err,
			Item:      data,
		})
	}
}

func renderError(op string, err error, item any) template.HTML {
	var sb strings.Builder
	_ = errorTmpl.Execute(&sb, errorData{Operation: op, Error: err, Item: item})
	return template.HTML(sb.String())
}

// printJSON renders arbitrary item data when no better template exists.
func printJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
