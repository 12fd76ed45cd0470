package dispatcher

import (
	"encoding/json"

	"github.com/workspace/codexmonitord/internal/ops"
)

// rawObjectToMap best-effort decodes an optional raw JSON object param into
// a map for merging into a forwarded request; an absent or malformed value
// yields nil, which callers treat as "no extra fields".
func rawObjectToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func rawImages(raw json.RawMessage) []ops.ImageInput {
	if len(raw) == 0 {
		return nil
	}
	var sources []string
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil
	}
	out := make([]ops.ImageInput, 0, len(sources))
	for _, s := range sources {
		out = append(out, ops.ImageInput{Source: s})
	}
	return out
}

func rawAppMentions(raw json.RawMessage) []ops.AppMention {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]ops.AppMention, 0, len(items))
	for _, it := range items {
		out = append(out, ops.AppMention{Name: it.Name, Path: it.Path})
	}
	return out
}

func rawSkillMentions(raw json.RawMessage) []ops.SkillMention {
	if len(raw) == 0 {
		return nil
	}
	var items []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]ops.SkillMention, 0, len(items))
	for _, it := range items {
		out = append(out, ops.SkillMention{Name: it.Name, Path: it.Path})
	}
	return out
}
