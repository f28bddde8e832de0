// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/validate"
	"gopkg.in/yaml.v3"
)

// AttributeType is the declared type of a model attribute.
type AttributeType string

const (
	TypeString  AttributeType = "STRING"
	TypeInteger AttributeType = "INTEGER"
	TypeDouble  AttributeType = "DOUBLE"
	TypeBoolean AttributeType = "BOOLEAN"
	TypeDate    AttributeType = "DATE"
)

// Attribute describes one property of a model.
type Attribute struct {
	Name      string        `yaml:"name"`
	Type      AttributeType `yaml:"type"`
	Optional  bool          `yaml:"optional"`
	Alterable bool          `yaml:"alterable"`
}

// ModelDefinition is a named set of attributes.
type ModelDefinition struct {
	Name       string      `yaml:"name"`
	Attributes []Attribute `yaml:"attributes"`
}

type registryFile struct {
	Models []ModelDefinition `yaml:"models"`
}

// ModelRegistry validates feature properties against model definitions.
// It is safe for concurrent use and can be swapped on reload.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]map[string]Attribute
}

// NewModelRegistry builds a registry from definitions.
func NewModelRegistry(defs []ModelDefinition) (*ModelRegistry, error) {
	r := &ModelRegistry{}
	if err := r.Replace(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadModelRegistry reads model definitions from a YAML file.
func LoadModelRegistry(path string) (*ModelRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	defs, err := ParseModels(data)
	if err != nil {
		return nil, fmt.Errorf("models file %s: %w", path, err)
	}
	return NewModelRegistry(defs)
}

// ParseModels decodes model definitions strictly: unknown keys and trailing
// documents are rejected.
func ParseModels(data []byte) ([]ModelDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f registryFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing yaml document")
	}
	return f.Models, nil
}

// Replace swaps the registry content after checking the definitions.
func (r *ModelRegistry) Replace(defs []ModelDefinition) error {
	models := make(map[string]map[string]Attribute, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("model without name")
		}
		if _, dup := models[d.Name]; dup {
			return fmt.Errorf("duplicate model %q", d.Name)
		}
		attrs := make(map[string]Attribute, len(d.Attributes))
		for _, a := range d.Attributes {
			switch a.Type {
			case TypeString, TypeInteger, TypeDouble, TypeBoolean, TypeDate:
			default:
				return fmt.Errorf("model %q attribute %q: unknown type %q", d.Name, a.Name, a.Type)
			}
			if _, dup := attrs[a.Name]; dup {
				return fmt.Errorf("model %q: duplicate attribute %q", d.Name, a.Name)
			}
			attrs[a.Name] = a
		}
		models[d.Name] = attrs
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
	return nil
}

// Models returns the registered model names, sorted.
func (r *ModelRegistry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidateModel checks f.Properties against modelName. In CREATION mode all
// mandatory attributes must be present; in PATCH mode only alterable
// attributes may appear and nil unsets an optional one.
func (r *ModelRegistry) ValidateModel(modelName string, f model.Feature, mode model.ValidationMode) ErrorSet {
	r.mu.RLock()
	attrs, ok := r.models[modelName]
	r.mu.RUnlock()

	acc := validate.New()
	if !ok {
		acc.AddError("model", fmt.Sprintf("unknown model %q", modelName), modelName)
		return ErrorSet(acc.Errors())
	}

	keys := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field := "properties." + k
		a, known := attrs[k]
		if !known {
			acc.AddError(field, "unknown attribute", k)
			continue
		}
		val := f.Properties[k]
		if mode == model.ModePatch && !a.Alterable {
			acc.AddError(field, "attribute is not alterable", val)
			continue
		}
		if val == nil {
			if !a.Optional {
				acc.AddError(field, "mandatory attribute cannot be null", nil)
			}
			continue
		}
		if err := checkType(a.Type, val); err != nil {
			acc.AddError(field, err.Error(), val)
		}
	}

	if mode == model.ModeCreation {
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if attrs[name].Optional {
				continue
			}
			if _, present := f.Properties[name]; !present {
				acc.AddError("properties."+name, "mandatory attribute is missing", nil)
			}
		}
	}
	return ErrorSet(acc.Errors())
}

func checkType(t AttributeType, v any) error {
	switch t {
	case TypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case TypeBoolean:
		if _, ok := v.(bool); ok {
			return nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return nil
			}
		}
	case TypeDouble:
		switch v.(type) {
		case float32, float64, int, int32, int64:
			return nil
		}
	case TypeDate:
		if s, ok := v.(string); ok {
			if _, err := time.Parse(time.RFC3339, s); err == nil {
				return nil
			}
			return fmt.Errorf("expected an RFC3339 date, got %q", s)
		}
	}
	return fmt.Errorf("expected %s, got %T", t, v)
}
