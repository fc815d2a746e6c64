package schema

import (
	"fmt"
	"strings"
)

// TagName is the struct tag key read during introspection.
const TagName = "orm"

type tagOptions struct {
	name      string
	pk        bool
	column    string
	embedded  bool
	prefix    string
	prefixSet bool
	relation  RelationKind
	join      string
	mappedBy  string
	fetch     string
	cascade   CascadeType
}

// parseTag reads `orm:"name,opt,key=value"`. The first element is the
// logical field name and may be empty.
func parseTag(raw string) (tagOptions, error) {
	var opts tagOptions
	if raw == "" {
		return opts, nil
	}

	parts := strings.Split(raw, ",")
	opts.name = strings.TrimSpace(parts[0])

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "pk", "primarykey":
			opts.pk = true
		case "column":
			opts.column = value
		case "embedded":
			opts.embedded = true
		case "prefix":
			opts.prefix = value
			opts.prefixSet = true
		case "onetoone":
			opts.relation = OneToOne
		case "onetomany":
			opts.relation = OneToMany
		case "manytoone":
			opts.relation = ManyToOne
		case "join", "joincolumn":
			opts.join = value
		case "mappedby":
			opts.mappedBy = value
		case "fetch":
			opts.fetch = strings.ToLower(value)
			if opts.fetch != "eager" && opts.fetch != "lazy" {
				return opts, fmt.Errorf("fetch must be eager or lazy, got %q", value)
			}
		case "cascade":
			cascade, err := parseCascade(value)
			if err != nil {
				return opts, err
			}
			opts.cascade = cascade
		default:
			return opts, fmt.Errorf("unknown tag option %q", key)
		}

		if hasValue && value == "" && key != "prefix" {
			return opts, fmt.Errorf("tag option %q needs a value", key)
		}
	}
	return opts, nil
}

func parseCascade(value string) (CascadeType, error) {
	var cascade CascadeType
	for _, name := range strings.Split(value, "|") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "all":
			cascade |= CascadeAll
		case "persist":
			cascade |= CascadePersist
		case "remove":
			cascade |= CascadeRemove
		case "merge":
			cascade |= CascadeMerge
		case "refresh":
			cascade |= CascadeRefresh
		case "":
		default:
			return 0, fmt.Errorf("unknown cascade type %q", name)
		}
	}
	return cascade, nil
}
