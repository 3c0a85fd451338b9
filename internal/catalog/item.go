// File: internal/catalog/item.go
package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the lifecycle state of a catalog item.
type Status string

const (
	StatusDraft          Status = "Draft"
	StatusInConversation Status = "InConversation"
	StatusPosted         Status = "Posted"
)

// Item is the canonical view of one catalog record.
type Item struct {
	ID          int
	Title       string
	Price       *float64
	Bottom      *float64
	Description string
	Category    string
	Photos      []string
	Status      Status
}

// HasPrice reports whether the item carries an asking price.
func (i Item) HasPrice() bool { return i.Price != nil }

// Canonical field names. Each maps to the spellings the importer has been
// seen to produce, compared after normalizeKey.
const (
	fieldID          = "id"
	fieldTitle       = "title"
	fieldPrice       = "price"
	fieldBottom      = "bottom"
	fieldDescription = "description"
	fieldCategory    = "category"
	fieldPhotos      = "photos"
	fieldStatus      = "status"
)

var fieldAliases = map[string]string{
	"id":          fieldID,
	"itemid":      fieldID,
	"title":       fieldTitle,
	"name":        fieldTitle,
	"price":       fieldPrice,
	"bottom":      fieldBottom,
	"bottomprice": fieldBottom,
	"minprice":    fieldBottom,
	"minimum":     fieldBottom,
	"description": fieldDescription,
	"desc":        fieldDescription,
	"category":    fieldCategory,
	"photopaths":  fieldPhotos,
	"photos":      fieldPhotos,
	"photo":       fieldPhotos,
	"images":      fieldPhotos,
	"status":      fieldStatus,
}

// normalizeKey folds case and drops separators: "Photo_Paths" -> "photopaths".
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// record is one element of the catalog array. Every original field is kept
// so that saving writes back exactly what was loaded plus status changes.
type record struct {
	// raw holds an element that could not be parsed as an item. It is
	// written back untouched.
	raw    jsoniter.RawMessage
	fields map[string]jsoniter.RawMessage
	// keys maps a canonical field to the spelling found in fields.
	keys map[string]string
	item Item
}

func (r *record) valid() bool { return r.raw == nil }

// parseRecord builds a record from one array element. A non-nil error means
// the element does not conform and is preserved as raw.
func parseRecord(data jsoniter.RawMessage) (*record, error) {
	fields := make(map[string]jsoniter.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return &record{raw: data}, fmt.Errorf("record is not an object: %w", err)
	}

	r := &record{fields: fields, keys: make(map[string]string)}
	for key := range fields {
		canonical, ok := fieldAliases[normalizeKey(key)]
		if !ok {
			continue
		}
		// Two spellings of one field: a non-null value wins, then the
		// lexically smaller key, so the choice does not depend on map order.
		if existing, dup := r.keys[canonical]; dup {
			if isNull(fields[key]) || (!isNull(fields[existing]) && existing < key) {
				continue
			}
		}
		r.keys[canonical] = key
	}

	idRaw, ok := r.value(fieldID)
	if !ok {
		return &record{raw: data}, fmt.Errorf("record has no id")
	}
	id, err := parseInt(idRaw)
	if err != nil {
		return &record{raw: data}, fmt.Errorf("record id: %w", err)
	}

	item := Item{ID: id}
	if v, ok := r.value(fieldTitle); ok {
		item.Title = parseString(v)
	}
	if v, ok := r.value(fieldPrice); ok {
		if item.Price, err = parseNumber(v); err != nil {
			return &record{raw: data}, fmt.Errorf("item %d price: %w", id, err)
		}
	}
	if v, ok := r.value(fieldBottom); ok {
		if item.Bottom, err = parseNumber(v); err != nil {
			return &record{raw: data}, fmt.Errorf("item %d bottom: %w", id, err)
		}
	}
	if v, ok := r.value(fieldDescription); ok {
		item.Description = parseString(v)
	}
	if v, ok := r.value(fieldCategory); ok {
		item.Category = parseString(v)
	}
	if v, ok := r.value(fieldPhotos); ok {
		item.Photos = parsePhotos(v)
	}
	item.Status = StatusDraft
	if v, ok := r.value(fieldStatus); ok {
		if s := parseString(v); s != "" {
			item.Status = Status(s)
		}
	}
	r.item = item
	return r, nil
}

func (r *record) value(canonical string) (jsoniter.RawMessage, bool) {
	key, ok := r.keys[canonical]
	if !ok {
		return nil, false
	}
	v := r.fields[key]
	if isNull(v) {
		return nil, false
	}
	return v, true
}

// setStatus updates the status in memory and in the preserved fields,
// reusing the document's own key spelling when it has one.
func (r *record) setStatus(status Status) {
	r.item.Status = status
	key, ok := r.keys[fieldStatus]
	if !ok {
		key = "Status"
		r.keys[fieldStatus] = key
	}
	encoded, _ := json.Marshal(string(status))
	r.fields[key] = encoded
}

// document returns the value written back to the catalog array.
func (r *record) document() interface{} {
	if !r.valid() {
		return r.raw
	}
	return r.fields
}

func isNull(v jsoniter.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func parseString(v jsoniter.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// Spreadsheet cells sometimes arrive as numbers; keep their text form.
	return strings.TrimSpace(string(v))
}

func parseNumber(v jsoniter.RawMessage) (*float64, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return &f, nil
	}
	s := strings.TrimSpace(parseString(v))
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %s", string(v))
	}
	return &parsed, nil
}

func parseInt(v jsoniter.RawMessage) (int, error) {
	f, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	if f == nil || *f != math.Trunc(*f) {
		return 0, fmt.Errorf("not an integer: %s", string(v))
	}
	return int(*f), nil
}

// parsePhotos accepts either a JSON list or a single comma separated string
// such as "26_1.jpg, 26_2.jpg".
func parsePhotos(v jsoniter.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(v, &list); err != nil {
		list = strings.Split(parseString(v), ",")
	}
	out := make([]string, 0, len(list))
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
