package filter

// MergeDefaults combines a resource's default filter with the filter a client
// supplied.
//
// A supplied object is deep merged over the defaults. A supplied array is
// treated as a sequence [defaults, supplied...]: a nil value for a top level
// key knocks that key out of every earlier entry. Nil values below the top
// level are ordinary operands (eq nil is IS NULL) and are never knockouts.
func MergeDefaults(defaults *Hash, supplied any) (any, error) {
	switch s := supplied.(type) {
	case nil:
		if defaults.Len() == 0 {
			return nil, nil
		}
		return defaults.Clone(), nil
	case *Hash:
		merged := defaults.Clone()
		if merged == nil {
			merged = NewHash()
		}
		deepMerge(merged, s, true)
		if merged.Len() == 0 {
			return nil, nil
		}
		return merged, nil
	case []any:
		return knockout(defaults, s)
	default:
		return nil, argErr(supplied, "filter must be an object or an array")
	}
}

func deepMerge(dst, src *Hash, topLevel bool) {
	for _, key := range src.Keys() {
		value, _ := src.Get(key)
		if value == nil && topLevel {
			dst.Delete(key)
			continue
		}
		existing, _ := dst.Get(key)
		dstHash, dstOK := existing.(*Hash)
		srcHash, srcOK := value.(*Hash)
		if dstOK && srcOK {
			deepMerge(dstHash, srcHash, false)
			continue
		}
		dst.Set(key, cloneValue(value))
	}
}

func knockout(defaults *Hash, supplied []any) (any, error) {
	entries := make([]*Hash, 0, len(supplied)+1)
	if defaults.Len() > 0 {
		entries = append(entries, defaults.Clone())
	}
	for _, item := range supplied {
		h, ok := item.(*Hash)
		if !ok {
			return nil, argErr(item, "filter array entries must be objects")
		}
		entry := NewHash()
		for _, key := range h.Keys() {
			value, _ := h.Get(key)
			if value == nil {
				for _, earlier := range entries {
					earlier.Delete(key)
				}
				continue
			}
			entry.Set(key, cloneValue(value))
		}
		entries = append(entries, entry)
	}

	out := make([]any, 0, len(entries))
	for _, entry := range entries {
		if entry.Len() > 0 {
			out = append(out, entry)
		}
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}
