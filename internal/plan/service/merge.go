package service

import "encoding/json"

// applyPatch merges a JSON merge patch into the base document.
//
// Rules:
//   - scalar and object fields are replaced wholesale
//   - array fields whose elements carry an objectId are merged element-wise:
//     elements matching an existing objectId are shallow-merged in place,
//     new elements are appended, and the order of pre-existing elements is
//     preserved
//   - arrays without objectId-bearing elements are replaced wholesale
//
// Neither input is mutated.
func applyPatch(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		incoming, ok := v.([]any)
		if !ok {
			out[k] = v
			continue
		}
		existing, ok := out[k].([]any)
		if !ok || !identifiable(incoming) {
			out[k] = v
			continue
		}
		out[k] = mergeArray(existing, incoming)
	}
	return out
}

// identifiable reports whether every element is an object with a non-empty
// objectId, the precondition for element-wise merging.
func identifiable(elems []any) bool {
	if len(elems) == 0 {
		return false
	}
	for _, e := range elems {
		if objectID(e) == "" {
			return false
		}
	}
	return true
}

func objectID(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["objectId"].(string)
	return id
}

func mergeArray(existing, incoming []any) []any {
	merged := make([]any, len(existing))
	copy(merged, existing)

	position := make(map[string]int, len(existing))
	for i, e := range existing {
		if id := objectID(e); id != "" {
			position[id] = i
		}
	}

	for _, elem := range incoming {
		id := objectID(elem)
		i, found := position[id]
		if !found {
			merged = append(merged, elem)
			continue
		}
		current, ok := merged[i].(map[string]any)
		if !ok {
			merged[i] = elem
			continue
		}
		patch := elem.(map[string]any)
		next := make(map[string]any, len(current)+len(patch))
		for k, v := range current {
			next[k] = v
		}
		for k, v := range patch {
			next[k] = v
		}
		merged[i] = next
	}
	return merged
}

// canonicalJSON is used for change detection on merged array elements.
// Generic JSON maps re-encode with sorted keys, so equal content means equal
// bytes.
func canonicalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
