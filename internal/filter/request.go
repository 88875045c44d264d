package filter

import (
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// Request is a parsed filter request.
type Request struct {
	Filter     any
	Projection *Hash
	Sorting    *Hash
	Paging     *Hash
	QSP        []QSP
}

const (
	qspPrefix        = "filter_"
	encodedFilterKey = "filter_encoded"
)

// ParseRequest reads a filter request from an optional JSON body and the
// query string. A filter_encoded parameter (base64url JSON) replaces the
// body's filter. Paging and sorting query parameters fill in whatever the
// body did not set, and filter_<field> parameters become QSP filters.
func ParseRequest(body []byte, query url.Values) (*Request, error) {
	req := &Request{}
	if len(strings.TrimSpace(string(body))) > 0 {
		decoded, err := Decode(body)
		if err != nil {
			return nil, argErr(nil, "request body is not valid JSON: %v", err)
		}
		root, ok := decoded.(*Hash)
		if !ok {
			return nil, argErr(decoded, "request body must be a JSON object")
		}
		if err := req.readBody(root); err != nil {
			return nil, err
		}
	}

	if encoded := query.Get(encodedFilterKey); encoded != "" {
		filter, err := decodeEncodedFilter(encoded)
		if err != nil {
			return nil, err
		}
		req.Filter = filter
	}

	if err := req.readQuery(query); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Request) readBody(root *Hash) error {
	return root.Each(func(key string, value any) error {
		switch key {
		case "filter":
			r.Filter = value
		case "projection", "sorting", "paging":
			if value == nil {
				return nil
			}
			h, ok := value.(*Hash)
			if !ok {
				return argErr(value, "%s must be an object", key)
			}
			switch key {
			case "projection":
				r.Projection = h
			case "sorting":
				r.Sorting = h
			default:
				r.Paging = h
			}
		}
		return nil
	})
}

func (r *Request) readQuery(query url.Values) error {
	fill := func(target **Hash, key, param string) {
		v := query.Get(param)
		if v == "" {
			return
		}
		if *target == nil {
			*target = NewHash()
		}
		if !(*target).Has(key) {
			(*target).Set(key, v)
		}
	}
	fill(&r.Paging, "page", "page")
	fill(&r.Paging, "items", "items")
	fill(&r.Paging, "disable_paging", "disable_paging")
	fill(&r.Sorting, "order_by", "order_by")
	fill(&r.Sorting, "direction", "direction")

	keys := make([]string, 0, len(query))
	for k := range query {
		if strings.HasPrefix(k, qspPrefix) && k != encodedFilterKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := strings.TrimPrefix(k, qspPrefix)
		if field == "" {
			return argErr(k, "query string filter %s has no field", k)
		}
		values := query[k]
		if len(values) != 1 {
			return argErr(values, "query string filter %s must be given once", k)
		}
		r.QSP = append(r.QSP, QSP{Field: field, Value: values[0]})
	}
	return nil
}

func decodeEncodedFilter(encoded string) (any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, argErr(encoded, "filter_encoded is not valid base64url")
	}
	filter, err := Decode(raw)
	if err != nil {
		return nil, argErr(nil, "filter_encoded is not valid JSON: %v", err)
	}
	return filter, nil
}
