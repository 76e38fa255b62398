package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/opmodel/opc/internal/core"
)

// Envelope wraps an operation result with hypermedia links.
type Envelope struct {
	Data  any               `json:"data"`
	Links map[string]string `json:"links"`
}

var routeParam = regexp.MustCompile(`\{([^}]+)\}`)

// Links replaces the result of routed operations with an Envelope carrying
// self and collection links. Route parameters are filled from the result's
// JSON form.
type Links struct{}

func NewLinks() *Links { return &Links{} }

func (l *Links) Name() string { return "links" }

func (l *Links) Matches(d *core.OperationDescriptor) bool {
	return d.Route != "" && d.Result != nil && d.Verb != "DELETE" && !disabled(d, l.Name())
}

func (l *Links) Explain(d *core.OperationDescriptor, matched bool) string {
	switch {
	case matched:
		return "wraps result in an envelope"
	case d.Route == "":
		return "operation has no route"
	case d.Result == nil:
		return "operation has no result"
	case d.Verb == "DELETE":
		return "deleted resources have no links"
	default:
		return "disabled by label"
	}
}

func (l *Links) Build(mc *core.MethodContext) error {
	result, ok := mc.Result()
	if !ok {
		return fmt.Errorf("links: operation has no result")
	}
	route := mc.Descriptor().Route
	envelope := core.Var[*Envelope]("envelope")

	f := core.NewFrame("links", core.ModeSync, []core.Variable{result}, []core.Variable{envelope},
		func(_ context.Context, args []any) ([]any, error) {
			links, err := buildLinks(route, args[0])
			if err != nil {
				return nil, err
			}
			return []any{&Envelope{Data: args[0], Links: links}}, nil
		})
	if err := mc.Append(f); err != nil {
		return err
	}
	mc.SetResult(f.Outputs[0])
	return nil
}

// buildLinks expands route against data. A route without parameters links
// to data's "id" when it has one.
func buildLinks(route string, data any) (map[string]string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("links: encoding result: %w", err)
	}

	links := map[string]string{"collection": collection(route)}
	if !routeParam.MatchString(route) {
		if id := gjson.GetBytes(raw, "id"); id.Exists() {
			links["self"] = strings.TrimSuffix(route, "/") + "/" + id.String()
		} else {
			links["self"] = route
		}
		return links, nil
	}

	complete := true
	self := routeParam.ReplaceAllStringFunc(route, func(m string) string {
		v := gjson.GetBytes(raw, m[1:len(m)-1])
		if !v.Exists() {
			complete = false
			return m
		}
		return v.String()
	})
	if complete {
		links["self"] = self
	}
	return links, nil
}

func collection(route string) string {
	if i := strings.Index(route, "{"); i >= 0 {
		route = route[:i]
	}
	route = strings.TrimSuffix(route, "/")
	if route == "" {
		return "/"
	}
	return route
}
