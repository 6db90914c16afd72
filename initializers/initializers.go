// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializers maintains a process-wide registry of named weight
// initialization schemes, resolving a scheme name to a concrete
// initializer.Initializer from the gomlx initializer package.
//
// The recurrent layer factories in the parent package take the initializer as
// a name (a convenient, serializable hyperparameter) and resolve it here at
// layer-construction time. New schemes can be added with Register, typically
// from an init function.
package initializers

import (
	"sort"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/ml/initializer"
	"github.com/gomlx/gomlx/pkg/ml/random"
	"github.com/pkg/errors"
)

// Default is the scheme name used when none is configured.
const Default = "Xavier"

// Constructor builds a fresh initializer for one layer-construction request.
// A new one is built per request so each gets its own random source.
type Constructor func() initializer.Initializer

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register adds a named initialization scheme to the registry.
// It panics if name is empty or already registered.
func Register(name string, c Constructor) {
	if name == "" || c == nil {
		exceptions.Panicf("initializers.Register requires a non-empty name and a non-nil constructor")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, found := registry[name]; found {
		exceptions.Panicf("initializers.Register: %q is already registered", name)
	}
	registry[name] = c
}

// Resolve returns the initializer registered under name.
// Scheme names are case-sensitive.
func Resolve(name string) (initializer.Initializer, error) {
	mu.RLock()
	c, found := registry[name]
	mu.RUnlock()
	if !found {
		return nil, errors.Errorf("unknown weight initializer %q: registered initializers are %v", name, Names())
	}
	return c(), nil
}

// MustResolve is like Resolve but panics on unknown names.
func MustResolve(name string) initializer.Initializer {
	init, err := Resolve(name)
	if err != nil {
		panic(err)
	}
	return init
}

// Names returns the sorted names of all registered schemes.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("Xavier", func() initializer.Initializer {
		return initializer.XavierUniform(random.New())
	})
	Register("XavierNormal", func() initializer.Initializer {
		return initializer.XavierNormal(random.New())
	})
	Register("Glorot", func() initializer.Initializer {
		return initializer.GlorotUniform(random.New())
	})
	Register("He", func() initializer.Initializer {
		return initializer.He(random.New())
	})
	Register("RandomNormal", func() initializer.Initializer {
		return initializer.Normal(random.New(), 0.05)
	})
	Register("RandomUniform", func() initializer.Initializer {
		return initializer.Uniform(random.New(), -0.05, 0.05)
	})
	Register("Zeros", func() initializer.Initializer {
		return initializer.Zero
	})
	Register("Ones", func() initializer.Initializer {
		return initializer.One
	})
}
