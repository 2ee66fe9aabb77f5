package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// RawJSON holds a field value this version of the schema does not know.
type RawJSON = json.RawMessage

type (
	profileAlias     VoiceProfile
	preferencesAlias Preferences
	historyAlias     HistoryEntry
)

// MarshalJSON writes the known fields and carries unknown ones forward.
func (p VoiceProfile) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(profileAlias(p), p.Extra)
}

// UnmarshalJSON reads known fields and keeps the rest in Extra.
func (p *VoiceProfile) UnmarshalJSON(data []byte) error {
	var alias profileAlias

	extra, err := unmarshalWithExtra(data, &alias)
	if err != nil {
		return err
	}

	*p = VoiceProfile(alias)
	p.Extra = extra

	return nil
}

// MarshalJSON writes the known fields and carries unknown ones forward.
func (p Preferences) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(preferencesAlias(p), p.Extra)
}

// UnmarshalJSON reads known fields over the defaults so that older documents
// missing a field pick up its default value.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	alias := preferencesAlias(DefaultPreferences())

	extra, err := unmarshalWithExtra(data, &alias)
	if err != nil {
		return err
	}

	*p = Preferences(alias)
	p.Extra = extra

	return nil
}

// MarshalJSON writes the known fields and carries unknown ones forward.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(historyAlias(h), h.Extra)
}

// UnmarshalJSON reads known fields and keeps the rest in Extra.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var alias historyAlias

	extra, err := unmarshalWithExtra(data, &alias)
	if err != nil {
		return err
	}

	*h = HistoryEntry(alias)
	h.Extra = extra

	return nil
}

func marshalWithExtra(known any, extra map[string]RawJSON) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal known fields: %w", err)
	}

	if len(extra) == 0 {
		return data, nil
	}

	fields := make(map[string]json.RawMessage)

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return nil, fmt.Errorf("failed to merge unknown fields: %w", err)
	}

	for key, value := range extra {
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged fields: %w", err)
	}

	return merged, nil
}

func unmarshalWithExtra(data []byte, target any) (map[string]RawJSON, error) {
	err := json.Unmarshal(data, target)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal known fields: %w", err)
	}

	var fields map[string]json.RawMessage

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal field set: %w", err)
	}

	known := jsonFieldNames(reflect.TypeOf(target).Elem())

	var extra map[string]RawJSON

	for key, value := range fields {
		if _, isKnown := known[key]; isKnown {
			continue
		}

		if extra == nil {
			extra = make(map[string]RawJSON)
		}

		extra[key] = value
	}

	return extra, nil
}

func jsonFieldNames(structType reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, structType.NumField())

	for i := range structType.NumField() {
		field := structType.Field(i)

		tag := field.Tag.Get("json")
		if tag == "-" || !field.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		names[name] = struct{}{}
	}

	return names
}
