package meta

import "strings"

// listAccumulator folds an ascending stream of object records into a
// ListObjectsResult, applying the delimiter grouping rules. A common prefix
// counts once against MaxKeys no matter how many keys collapse into it.
type listAccumulator struct {
	prefix    string
	delimiter string
	maxKeys   int

	objects    []Object
	prefixes   []string
	lastPrefix string
	lastKey    string
	truncated  bool
}

func newListAccumulator(opts ListObjectsOptions) *listAccumulator {
	return &listAccumulator{
		prefix:    opts.Prefix,
		delimiter: opts.Delimiter,
		maxKeys:   opts.MaxKeys,
	}
}

// add consumes one record and reports whether the caller should keep
// feeding. Records must arrive in ascending key order and already match
// the prefix.
func (a *listAccumulator) add(obj Object) bool {
	if a.delimiter != "" {
		tail := obj.Key[len(a.prefix):]
		if idx := strings.Index(tail, a.delimiter); idx >= 0 {
			common := a.prefix + tail[:idx+len(a.delimiter)]
			if common == a.lastPrefix {
				return true
			}
			if a.count() >= a.maxKeys {
				a.truncated = true
				return false
			}
			a.prefixes = append(a.prefixes, common)
			a.lastPrefix = common
			a.lastKey = common
			return true
		}
	}
	if a.count() >= a.maxKeys {
		a.truncated = true
		return false
	}
	a.objects = append(a.objects, obj)
	a.lastKey = obj.Key
	return true
}

func (a *listAccumulator) count() int {
	return len(a.objects) + len(a.prefixes)
}

func (a *listAccumulator) result() *ListObjectsResult {
	res := &ListObjectsResult{
		Objects:        a.objects,
		CommonPrefixes: a.prefixes,
		IsTruncated:    a.truncated,
	}
	if a.truncated {
		res.NextKey = a.lastKey
	}
	return res
}
