package message

import (
	"fmt"
	"reflect"
	"sort"
)

// Registry maps type tags to payload variants.
type Registry struct {
	types map[string]reflect.Type
}

// NewRegistry builds a registry from pointer prototypes, e.g. NewRegistry(&Read{}, &ReadOk{}).
// Decoded payloads are always pointers to fresh values of the prototype's type.
func NewRegistry(prototypes ...Payload) *Registry {
	r := &Registry{types: make(map[string]reflect.Type, len(prototypes))}
	for _, p := range prototypes {
		t := reflect.TypeOf(p)
		if t.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("message: prototype %T must be a pointer", p))
		}
		if _, dup := r.types[p.Type()]; dup {
			panic(fmt.Sprintf("message: duplicate type %q", p.Type()))
		}
		r.types[p.Type()] = t.Elem()
	}
	return r
}

// New returns a zero payload for the type tag.
func (r *Registry) New(typ string) (Payload, bool) {
	t, ok := r.types[typ]
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface().(Payload), true
}

// Has reports whether typ is a known variant.
func (r *Registry) Has(typ string) bool {
	_, ok := r.types[typ]
	return ok
}

// Types returns the sorted type tags.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
