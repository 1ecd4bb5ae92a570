package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownShape indicates the payload matched none of the three accepted
// page-result shapes.
var ErrUnknownShape = errors.New("unknown page payload shape")

// Shape identifies which wire shape a payload was decoded from.
type Shape int

const (
	// ShapeItems is the current {"items": [...], "pagination": {...}} payload.
	ShapeItems Shape = iota + 1

	// ShapeBare is a bare JSON array (unpaginated endpoints).
	ShapeBare

	// ShapeWrapped is the legacy {"data": {...}} wrapper.
	ShapeWrapped
)

// String returns the shape name for logging.
func (s Shape) String() string {
	switch s {
	case ShapeItems:
		return "items"
	case ShapeBare:
		return "bare"
	case ShapeWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Normalized is the canonical page produced from any wire shape.
type Normalized struct {
	Shape      Shape
	Items      []Entity
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
}

// wirePagination mirrors the server's pagination block. Pointer fields
// distinguish absent from zero so missing values can be synthesized.
type wirePagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int   `json:"total"`
	TotalPages *int  `json:"total_pages"`
	HasPrev    *bool `json:"has_prev"`
	HasNext    *bool `json:"has_next"`
}

// Normalize decodes a page payload in any of the three accepted shapes into
// a canonical page. reqPage and perPage are the request parameters, used to
// fill pagination fields the payload does not carry.
func Normalize(data []byte, reqPage, perPage int) (Normalized, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Normalized{}, fmt.Errorf("%w: empty payload", ErrUnknownShape)
	}

	// Bare array shape.
	if trimmed[0] == '[' {
		items, err := decodeItems(trimmed)
		if err != nil {
			return Normalized{}, err
		}
		return bareCollection(ShapeBare, items, perPage), nil
	}

	if trimmed[0] != '{' {
		return Normalized{}, fmt.Errorf("%w: payload is not an object or array", ErrUnknownShape)
	}

	var env struct {
		Items      json.RawMessage `json:"items"`
		Pagination *wirePagination `json:"pagination"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Normalized{}, fmt.Errorf("decode page envelope: %w", err)
	}

	switch {
	case env.Items != nil:
		items, err := decodeItems(env.Items)
		if err != nil {
			return Normalized{}, err
		}
		return synthesize(ShapeItems, items, env.Pagination, reqPage, perPage), nil

	case env.Data != nil:
		return normalizeWrapped(env.Data, reqPage, perPage)

	default:
		return Normalized{}, fmt.Errorf("%w: object has neither items nor data", ErrUnknownShape)
	}
}

// normalizeWrapped handles the legacy {"data": ...} wrapper. The data member
// is either a bare array or an object carrying items plus flat pagination
// fields.
func normalizeWrapped(data json.RawMessage, reqPage, perPage int) (Normalized, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		items, err := decodeItems(trimmed)
		if err != nil {
			return Normalized{}, err
		}
		return bareCollection(ShapeWrapped, items, perPage), nil
	}

	var inner struct {
		Items      json.RawMessage `json:"items"`
		Page       int             `json:"page"`
		PerPage    int             `json:"per_page"`
		Total      int             `json:"total"`
		TotalPages *int            `json:"total_pages"`
		HasPrev    *bool           `json:"has_prev"`
		HasNext    *bool           `json:"has_next"`
	}
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return Normalized{}, fmt.Errorf("decode wrapped page: %w", err)
	}
	if inner.Items == nil {
		return Normalized{}, fmt.Errorf("%w: wrapped data has no items", ErrUnknownShape)
	}

	items, err := decodeItems(inner.Items)
	if err != nil {
		return Normalized{}, err
	}

	pg := &wirePagination{
		Page:       inner.Page,
		PerPage:    inner.PerPage,
		Total:      inner.Total,
		TotalPages: inner.TotalPages,
		HasPrev:    inner.HasPrev,
		HasNext:    inner.HasNext,
	}
	return synthesize(ShapeWrapped, items, pg, reqPage, perPage), nil
}

// decodeItems decodes a JSON array of entity objects.
func decodeItems(data []byte) ([]Entity, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	items := make([]Entity, 0, len(raw))
	for i, obj := range raw {
		entity, err := entityFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, entity)
	}
	return items, nil
}

// bareCollection builds a canonical page for payloads without pagination
// metadata: the whole collection is a single page.
func bareCollection(shape Shape, items []Entity, perPage int) Normalized {
	if perPage <= 0 {
		perPage = len(items)
	}
	return Normalized{
		Shape:      shape,
		Items:      items,
		Page:       1,
		PerPage:    perPage,
		Total:      len(items),
		TotalPages: 1,
		HasPrev:    false,
		HasNext:    false,
	}
}

// synthesize fills in pagination fields that the payload omitted and derives
// total_pages, has_prev and has_next when absent.
func synthesize(shape Shape, items []Entity, pg *wirePagination, reqPage, perPage int) Normalized {
	n := Normalized{Shape: shape, Items: items, Page: reqPage, PerPage: perPage}
	if pg != nil {
		if pg.Page > 0 {
			n.Page = pg.Page
		}
		if pg.PerPage > 0 {
			n.PerPage = pg.PerPage
		}
		n.Total = pg.Total
	}
	if n.Page < 1 {
		n.Page = 1
	}
	if n.PerPage < 1 {
		n.PerPage = len(items)
		if n.PerPage < 1 {
			n.PerPage = 1
		}
	}
	if n.Total < len(items) {
		n.Total = len(items)
	}

	if pg != nil && pg.TotalPages != nil {
		n.TotalPages = *pg.TotalPages
	} else {
		n.TotalPages = (n.Total + n.PerPage - 1) / n.PerPage
	}

	if pg != nil && pg.HasPrev != nil {
		n.HasPrev = *pg.HasPrev
	} else {
		n.HasPrev = n.Page > 1
	}
	if pg != nil && pg.HasNext != nil {
		n.HasNext = *pg.HasNext
	} else {
		n.HasNext = n.Page < n.TotalPages
	}

	return n
}
