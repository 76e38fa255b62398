package build

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/output"
)

// BuilderConfig is the configuration of one registered middleware builder
// as it enters the cache key.
type BuilderConfig struct {
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

// CacheKey is everything a compiled artifact depends on.
type CacheKey struct {
	// Operations are the registered descriptors in registration order.
	Operations []*core.OperationDescriptor

	// Middleware lists registered builders in registration order.
	Middleware []BuilderConfig

	// Container lists the container-resolvable types.
	Container []reflect.Type
}

type digestVariable struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type digestFrame struct {
	Name     string           `json:"name"`
	Mode     string           `json:"mode"`
	Nested   bool             `json:"nested,omitempty"`
	Required bool             `json:"required,omitempty"`
	Inputs   []digestVariable `json:"inputs,omitempty"`
	Outputs  []digestVariable `json:"outputs,omitempty"`
	Doc      []string         `json:"doc,omitempty"`
}

type digestOperation struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Verb       string            `json:"verb,omitempty"`
	Route      string            `json:"route,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Result     string            `json:"result,omitempty"`
	ResultName string            `json:"resultName,omitempty"`
	ByName     bool              `json:"byName,omitempty"`
	Handlers   []digestFrame     `json:"handlers"`
}

type digestDocument struct {
	Operations []digestOperation `json:"operations"`
	Middleware []BuilderConfig   `json:"middleware"`
	Container  []string          `json:"container"`
}

// Digest computes a deterministic "sha256:<hex>" digest of the key.
//
// Operations and middleware keep their registration order because both
// affect the generated unit. Container types are sorted. Maps are
// serialized with sorted keys by encoding/json.
func (k CacheKey) Digest() (string, error) {
	doc := digestDocument{
		Operations: make([]digestOperation, 0, len(k.Operations)),
		Middleware: k.Middleware,
		Container:  make([]string, 0, len(k.Container)),
	}
	if doc.Middleware == nil {
		doc.Middleware = []BuilderConfig{}
	}
	for _, d := range k.Operations {
		op := digestOperation{
			Name:       d.Name,
			Type:       typeKey(d.Type),
			Verb:       d.Verb,
			Route:      d.Route,
			Labels:     d.Labels,
			ResultName: d.ResultName,
			ByName:     d.ByName,
			Handlers:   make([]digestFrame, 0, len(d.Handlers)),
		}
		if d.Result != nil {
			op.Result = typeKey(d.Result)
		}
		for _, f := range d.Handlers {
			op.Handlers = append(op.Handlers, digestFrame{
				Name:     f.Name,
				Mode:     f.Mode.String(),
				Nested:   f.Nested,
				Required: f.Required,
				Inputs:   digestVariables(f.Inputs),
				Outputs:  digestVariables(f.Outputs),
				Doc:      f.Doc,
			})
		}
		doc.Operations = append(doc.Operations, op)
	}
	for _, t := range k.Container {
		doc.Container = append(doc.Container, typeKey(t))
	}
	sort.Strings(doc.Container)

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("computing cache digest: %w", err)
	}
	return fmt.Sprintf("sha256:%x", sha256.Sum256(b)), nil
}

func digestVariables(vars []core.Variable) []digestVariable {
	out := make([]digestVariable, len(vars))
	for i, v := range vars {
		out[i] = digestVariable{Type: typeKey(v.Type), Name: v.Name}
	}
	return out
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.PkgPath() + "|" + t.String()
}

// Cache holds compiled artifacts by digest. It is safe for concurrent use;
// each digest is compiled at most once while its compilation succeeds.
type Cache struct {
	backend Backend

	mu        sync.Mutex
	artifacts map[string]*Artifact
	compiles  int
}

// NewCache creates a cache compiling through backend.
func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend, artifacts: make(map[string]*Artifact)}
}

// Backend returns the backend used on misses.
func (c *Cache) Backend() Backend {
	return c.backend
}

// Compile returns the artifact for a, compiling it on a miss. The second
// result reports a hit. A hit requires both the digest and the rendered
// unit to match; failures are never cached.
func (c *Cache) Compile(ctx context.Context, a *Assembly) (*Artifact, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if art, ok := c.artifacts[a.Digest]; ok && bytes.Equal(art.Source, a.Source) {
		output.Debug("cache hit", "digest", a.Digest)
		return art, true, nil
	}

	art, err := c.backend.Compile(ctx, a)
	if err != nil {
		return nil, false, err
	}
	c.compiles++
	if a.Digest != "" {
		c.artifacts[a.Digest] = art
	}
	return art, false, nil
}

// Compiles returns how many times the backend has been invoked
// successfully.
func (c *Cache) Compiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiles
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.artifacts)
}
