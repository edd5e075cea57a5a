// Copyright 2025 Buildarr Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remotemap implements the attribute reconciliation map: a generic,
// per-attribute description of how to read a local configuration value, read
// the matching remote value, compare the two, and render an update payload.
//
// The orchestration layer never learns what an attribute means. Plugins
// declare a list of Entry values per resource type, and the engine turns
// them into a Diff and, where needed, a single batched update payload.
package remotemap

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
)

// Value is a canonical attribute value. Both the local and remote readers
// must normalize to the same canonical representation before comparison
// (e.g. remote-returned enumerations and locally-declared strings are
// compared on the same footing).
type Value = any

// Entry maps one configuration attribute to its remote equivalent.
type Entry struct {
	// Path is the attribute path within the configuration tree,
	// used in diff output and logging (e.g. "general.host.instance_name").
	Path string

	// Local reads the canonical local value from the instance configuration.
	// The second return value reports whether the attribute is explicitly
	// declared in the local configuration. When false the attribute is
	// skipped entirely and the remote value is left untouched, regardless
	// of what it is.
	Local func(config any) (Value, bool)

	// Remote reads the canonical value from fetched remote state.
	Remote func(remote any) Value

	// Equal overrides the comparison predicate for this attribute.
	// When nil, deep value equality is used.
	Equal func(local, remote Value) bool

	// Render mutates the pending update payload to carry the new value.
	// It must not perform any I/O; the payload is pushed once per resource,
	// not once per attribute.
	Render func(payload map[string]any, value Value)
}

// Change records one attribute-level difference.
type Change struct {
	Path string
	Old  Value
	New  Value
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Path, c.Old, c.New)
}

// Diff is the ordered list of attribute-level changes for one resource.
// Order follows entry declaration order, so repeated runs over unchanged
// configuration produce identical output.
type Diff struct {
	Changes []Change
}

// Empty reports whether the diff requires an API call.
func (d Diff) Empty() bool {
	return len(d.Changes) == 0
}

// EntryError wraps a failure raised by a plugin-supplied entry function.
// It carries the attribute path so the failing attribute can be reported.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("attribute %q: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Compare runs every entry against the local configuration and fetched
// remote state and returns the resulting Diff. It performs no I/O.
//
// A panic inside a plugin-supplied function is converted into an EntryError
// so that one broken entry aborts reconciliation for this resource only,
// not the whole process.
func Compare(entries []Entry, config, remote any) (diff Diff, err error) {
	for _, entry := range entries {
		change, changed, entryErr := compareEntry(entry, config, remote)
		if entryErr != nil {
			return Diff{}, entryErr
		}
		if changed {
			diff.Changes = append(diff.Changes, change)
		}
	}
	return diff, nil
}

func compareEntry(entry Entry, config, remote any) (change Change, changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EntryError{Path: entry.Path, Err: fmt.Errorf("%v", r)}
		}
	}()

	local, declared := entry.Local(config)
	if !declared {
		// Unmanaged attribute. Absence of a local declaration must never
		// produce a remote mutation.
		return Change{}, false, nil
	}

	remoteValue := entry.Remote(remote)

	equal := entry.Equal
	if equal == nil {
		equal = func(a, b Value) bool { return cmp.Equal(a, b) }
	}
	if equal(local, remoteValue) {
		return Change{}, false, nil
	}

	return Change{Path: entry.Path, Old: remoteValue, New: local}, true, nil
}

// RenderPayload applies the Render function of every changed entry onto a
// copy of the base payload, producing the object as it will be sent to the
// remote API in a single request. The base payload is typically the remote
// resource as fetched, so unmanaged attributes round-trip unchanged.
func RenderPayload(entries []Entry, diff Diff, base map[string]any) (payload map[string]any, err error) {
	payload = make(map[string]any, len(base))
	for k, v := range base {
		payload[k] = v
	}

	changed := make(map[string]Value, len(diff.Changes))
	for _, change := range diff.Changes {
		changed[change.Path] = change.New
	}

	for _, entry := range entries {
		value, ok := changed[entry.Path]
		if !ok {
			continue
		}
		if entry.Render == nil {
			return nil, &EntryError{Path: entry.Path, Err: fmt.Errorf("no render function defined")}
		}
		if err := renderEntry(entry, payload, value); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func renderEntry(entry Entry, payload map[string]any, value Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EntryError{Path: entry.Path, Err: fmt.Errorf("%v", r)}
		}
	}()
	entry.Render(payload, value)
	return nil
}

// RenderKey returns a Render function that sets a top-level payload key.
func RenderKey(name string) func(payload map[string]any, value Value) {
	return func(payload map[string]any, value Value) {
		payload[name] = value
	}
}

// RenderField returns a Render function that appends a name/value pair to
// the payload's "fields" list, the representation used by *Arr-style APIs
// for free-form settings fields.
func RenderField(name string) func(payload map[string]any, value Value) {
	return func(payload map[string]any, value Value) {
		fields, _ := payload["fields"].([]any)
		for i, f := range fields {
			if m, ok := f.(map[string]any); ok && m["name"] == name {
				updated := make(map[string]any, len(m))
				for k, v := range m {
					updated[k] = v
				}
				updated["value"] = value
				fields[i] = updated
				payload["fields"] = fields
				return
			}
		}
		payload["fields"] = append(fields, map[string]any{"name": name, "value": value})
	}
}

// UnorderedStrings is an Equal predicate comparing two string slices as
// sets, ignoring order and duplicates.
func UnorderedStrings(local, remote Value) bool {
	a, aok := toStrings(local)
	b, bok := toStrings(remote)
	if !aok || !bok {
		return cmp.Equal(local, remote)
	}
	sort.Strings(a)
	sort.Strings(b)
	a = dedupe(a)
	b = dedupe(b)
	return cmp.Equal(a, b)
}

func toStrings(v Value) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

func dedupe(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || s[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
