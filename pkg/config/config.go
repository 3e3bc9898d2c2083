// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config loads hyperparameters from YAML files into a context.Context.
//
// Every key must already be defined, with its default value, in the root scope of the context: the type of the
// default defines how the YAML value is decoded, and unknown keys are reported as errors.
// Nested mappings select a scope, so the two files below are equivalent:
//
//	egnn_hidden_dim: 128
//	decoder:
//	  egnn_num_blocks: 2
//
//	egnn_hidden_dim: 128
//	decoder/egnn_num_blocks: 2
//
// It complements commandline.ParseContextSettings, which can be applied after LoadFile to override values from
// the command line.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// LoadFile reads the YAML file in path and sets the hyperparameters in ctx.
//
// It returns the paths (scope and name) of the parameters set, in the order they appear in the file.
func LoadFile(ctx *context.Context, path string) (paramsSet []string, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %q", path)
	}
	paramsSet, err = Load(ctx, bytes.NewReader(contents))
	if err != nil {
		return nil, errors.WithMessagef(err, "config file %q", path)
	}
	klog.V(1).Infof("loaded %d hyperparameters from %q", len(paramsSet), path)
	return paramsSet, nil
}

// Load reads the YAML document from r and sets the hyperparameters in ctx. See LoadFile.
func Load(ctx *context.Context, r io.Reader) (paramsSet []string, err error) {
	var doc yaml.Node
	err = yaml.NewDecoder(r).Decode(&doc)
	if err == io.EOF {
		// Empty document.
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Errorf("line %d: config must be a mapping of hyperparameters to values", root.Line)
	}
	loader := &loader{ctx: ctx}
	if err = loader.mapping("", root); err != nil {
		return nil, err
	}
	return loader.paramsSet, nil
}

type loader struct {
	ctx       *context.Context
	paramsSet []string
}

// mapping sets the parameters of a mapping node, with scope prefixed to its keys.
func (l *loader) mapping(scope string, node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := strings.Trim(keyNode.Value, context.ScopeSeparator)
		if key == "" {
			return errors.Errorf("line %d: empty key", keyNode.Line)
		}
		path := key
		if scope != "" {
			path = scope + context.ScopeSeparator + key
		}
		if valueNode.Kind == yaml.MappingNode {
			if err := l.mapping(path, valueNode); err != nil {
				return err
			}
			continue
		}
		if err := l.set(path, valueNode); err != nil {
			return err
		}
	}
	return nil
}

// set decodes the value node into the type of the default value of the parameter, and sets it in its scope.
func (l *loader) set(path string, valueNode *yaml.Node) error {
	paramScope, paramName := "", path
	if strings.Contains(path, context.ScopeSeparator) {
		paramScope, paramName = context.SplitScope(context.ScopeSeparator + path)
	}
	defaultValue, found := l.ctx.GetParam(paramName)
	if !found {
		return errors.Errorf("line %d: unknown hyperparameter %q (no default value defined in the context)",
			valueNode.Line, paramName)
	}
	value, err := decodeAs(valueNode, defaultValue)
	if err != nil {
		return errors.Wrapf(err, "line %d: hyperparameter %q (default value is %#v)",
			valueNode.Line, path, defaultValue)
	}
	ctxInScope := l.ctx
	if paramScope != "" {
		ctxInScope = l.ctx.InAbsPath(paramScope)
	}
	ctxInScope.SetParam(paramName, value)
	l.paramsSet = append(l.paramsSet, path)
	return nil
}

func decodeAs(node *yaml.Node, defaultValue any) (any, error) {
	var err error
	switch v := defaultValue.(type) {
	case int:
		if err = checkInt(node); err != nil {
			return nil, err
		}
		err = node.Decode(&v)
		return v, err
	case int32:
		if err = checkInt(node); err != nil {
			return nil, err
		}
		err = node.Decode(&v)
		return v, err
	case int64:
		if err = checkInt(node); err != nil {
			return nil, err
		}
		err = node.Decode(&v)
		return v, err
	case float64:
		err = node.Decode(&v)
		return v, err
	case float32:
		err = node.Decode(&v)
		return v, err
	case bool:
		err = node.Decode(&v)
		return v, err
	case string:
		if node.Kind != yaml.ScalarNode {
			return nil, errors.Errorf("expected a string, got a YAML node of kind %d", node.Kind)
		}
		return node.Value, nil
	case []string:
		v = nil
		err = node.Decode(&v)
		return v, err
	case []int:
		if node.Kind == yaml.SequenceNode {
			for _, item := range node.Content {
				if err = checkInt(item); err != nil {
					return nil, err
				}
			}
		}
		v = nil
		err = node.Decode(&v)
		return v, err
	case []float64:
		v = nil
		err = node.Decode(&v)
		return v, err
	default:
		return nil, errors.Errorf("don't know how to decode a value for a parameter of type %T", defaultValue)
	}
}

// checkInt returns an error if node is not an integer scalar: yaml.v3 would otherwise truncate floats.
func checkInt(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return errors.Errorf("expected an integer, got %q (%s)", node.Value, node.ShortTag())
	}
	return nil
}
