package main

import (
	"fmt"
	"sort"
	"strings"
)

// headerFlags collects repeated -H "Name: value" flags.
type headerFlags map[string]string

func (h headerFlags) String() string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ": " + h[k]
	}
	return strings.Join(pairs, ", ")
}

func (h headerFlags) Set(value string) error {
	name, val, ok := strings.Cut(value, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("header must look like \"Name: value\"")
	}
	h[name] = strings.TrimSpace(val)
	return nil
}
