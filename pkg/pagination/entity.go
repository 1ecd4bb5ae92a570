package pagination

import (
	"fmt"
	"strconv"
)

// Entity is one row of a paginated collection. Fields holds the raw decoded
// object, including the id field itself.
type Entity struct {
	ID     string
	Fields map[string]any
}

// Patch is a partial field overlay applied on top of an entity. It is never
// a full entity; absent keys are left untouched.
type Patch map[string]any

// absentValue marks a field that did not exist before a patch was applied.
// RevertPatch deletes such fields instead of restoring a value.
type absentValue struct{}

// Clone returns an independent copy of the patch.
func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	out := make(Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Known returns the patch without fields that ApplyPatch recorded as absent
// before the overlay. Use it when the patch travels outside this package,
// e.g. as a change-event payload.
func (p Patch) Known() Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		if _, isAbsent := v.(absentValue); isAbsent {
			continue
		}
		out[k] = v
	}
	return out
}

// clone returns a copy of the entity with its own field map.
func (e Entity) clone() Entity {
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	return Entity{ID: e.ID, Fields: fields}
}

// entityFromObject builds an Entity from a decoded JSON object. The id field
// may be a string or a number on the wire.
func entityFromObject(obj map[string]any) (Entity, error) {
	raw, ok := obj["id"]
	if !ok {
		return Entity{}, fmt.Errorf("item has no id field")
	}

	var id string
	switch v := raw.(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return Entity{}, fmt.Errorf("item id has unsupported type %T", raw)
	}

	if id == "" {
		return Entity{}, fmt.Errorf("item has empty id")
	}

	return Entity{ID: id, Fields: obj}, nil
}
