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

package remotemap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	name     *string
	priority *int
	tags     []string
}

func nameEntry() Entry {
	return Entry{
		Path: "settings.name",
		Local: func(config any) (Value, bool) {
			c := config.(*testConfig)
			if c.name == nil {
				return nil, false
			}
			return *c.name, true
		},
		Remote: func(remote any) Value {
			return remote.(map[string]any)["name"]
		},
		Render: RenderKey("name"),
	}
}

func priorityEntry() Entry {
	return Entry{
		Path: "settings.priority",
		Local: func(config any) (Value, bool) {
			c := config.(*testConfig)
			if c.priority == nil {
				return nil, false
			}
			return *c.priority, true
		},
		Remote: func(remote any) Value {
			return remote.(map[string]any)["priority"]
		},
		Render: RenderKey("priority"),
	}
}

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func TestCompareDetectsChange(t *testing.T) {
	config := &testConfig{name: strptr("Sonarr (Buildarr Example)")}
	remote := map[string]any{"name": "Sonarr", "priority": 10}

	diff, err := Compare([]Entry{nameEntry(), priorityEntry()}, config, remote)
	require.NoError(t, err)

	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "settings.name", diff.Changes[0].Path)
	assert.Equal(t, "Sonarr", diff.Changes[0].Old)
	assert.Equal(t, "Sonarr (Buildarr Example)", diff.Changes[0].New)
}

func TestCompareUndeclaredAttributeNeverChanges(t *testing.T) {
	// priority differs remotely, but the local configuration does not
	// declare it. It must not appear in the diff, whatever its value.
	config := &testConfig{name: strptr("Sonarr")}
	remote := map[string]any{"name": "Sonarr", "priority": 99}

	diff, err := Compare([]Entry{nameEntry(), priorityEntry()}, config, remote)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestCompareEqualValuesProduceEmptyDiff(t *testing.T) {
	config := &testConfig{name: strptr("Sonarr"), priority: intptr(10)}
	remote := map[string]any{"name": "Sonarr", "priority": 10}

	diff, err := Compare([]Entry{nameEntry(), priorityEntry()}, config, remote)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestCompareCustomEqual(t *testing.T) {
	entry := Entry{
		Path: "settings.tags",
		Local: func(config any) (Value, bool) {
			return config.(*testConfig).tags, true
		},
		Remote: func(remote any) Value {
			return remote.(map[string]any)["tags"]
		},
		Equal:  UnorderedStrings,
		Render: RenderKey("tags"),
	}

	config := &testConfig{tags: []string{"b", "a", "a"}}

	diff, err := Compare([]Entry{entry}, config, map[string]any{"tags": []any{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, diff.Empty(), "order and duplicates must not count as a change")

	diff, err = Compare([]Entry{entry}, config, map[string]any{"tags": []any{"a", "c"}})
	require.NoError(t, err)
	assert.Len(t, diff.Changes, 1)
}

func TestComparePanicBecomesEntryError(t *testing.T) {
	entry := Entry{
		Path:   "settings.broken",
		Local:  func(any) (Value, bool) { panic("bad entry") },
		Remote: func(any) Value { return nil },
	}

	_, err := Compare([]Entry{entry}, &testConfig{}, map[string]any{})
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "settings.broken", entryErr.Path)
	assert.Contains(t, err.Error(), "bad entry")
}

func TestRenderPayloadPreservesBase(t *testing.T) {
	config := &testConfig{name: strptr("Renamed")}
	entries := []Entry{nameEntry()}
	remote := map[string]any{"name": "Original", "priority": 10, "unmanagedKey": "untouched"}

	diff, err := Compare(entries, config, remote)
	require.NoError(t, err)

	payload, err := RenderPayload(entries, diff, remote)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", payload["name"])
	assert.Equal(t, 10, payload["priority"])
	assert.Equal(t, "untouched", payload["unmanagedKey"])

	// The base map itself must not be mutated.
	assert.Equal(t, "Original", remote["name"])
}

func TestRenderPayloadMissingRenderFunc(t *testing.T) {
	entry := nameEntry()
	entry.Render = nil

	diff := Diff{Changes: []Change{{Path: "settings.name", New: "x"}}}
	_, err := RenderPayload([]Entry{entry}, diff, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no render function")
}

func TestRenderField(t *testing.T) {
	payload := map[string]any{
		"fields": []any{
			map[string]any{"name": "apiKey", "value": "old"},
			map[string]any{"name": "other", "value": 1},
		},
	}

	RenderField("apiKey")(payload, "new")
	fields := payload["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "new", fields[0].(map[string]any)["value"])
	assert.Equal(t, 1, fields[1].(map[string]any)["value"])

	// Missing field names are appended.
	RenderField("added")(payload, true)
	fields = payload["fields"].([]any)
	require.Len(t, fields, 3)
	assert.Equal(t, "added", fields[2].(map[string]any)["name"])
	assert.Equal(t, true, fields[2].(map[string]any)["value"])
}

func TestDiffOrderFollowsEntryOrder(t *testing.T) {
	config := &testConfig{name: strptr("a"), priority: intptr(1)}
	remote := map[string]any{"name": "b", "priority": 2}

	diff, err := Compare([]Entry{nameEntry(), priorityEntry()}, config, remote)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 2)

	paths := []string{diff.Changes[0].Path, diff.Changes[1].Path}
	assert.Equal(t, []string{"settings.name", "settings.priority"}, paths)
}

func TestChangeString(t *testing.T) {
	change := Change{Path: "settings.name", Old: "a", New: "b"}
	if got := change.String(); !strings.Contains(got, "a -> b") {
		t.Errorf("unexpected change string %q", got)
	}
}
