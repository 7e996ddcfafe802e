package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// reservedParams are list parameters that are never filters.
var reservedParams = map[string]struct{}{
	"search":    {},
	"ordering":  {},
	"page":      {},
	"page_size": {},
}

// parseListOptions reads search, ordering and pagination from the query
// string.
func parseListOptions(q url.Values) (store.ListOptions, error) {
	opts := store.ListOptions{Search: q.Get("search")}

	if ordering := q.Get("ordering"); ordering != "" {
		for _, field := range strings.Split(ordering, ",") {
			if field = strings.TrimSpace(field); field != "" {
				opts.Ordering = append(opts.Ordering, field)
			}
		}
	}

	for name, dst := range map[string]*int{"page": &opts.Page, "page_size": &opts.PageSize} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}

		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, &store.ValidationError{Fields: map[string]string{
				name: "a positive integer is required",
			}}
		}

		*dst = n
	}

	return opts, nil
}

// decodeFilter weakly decodes filter query parameters into out, a
// pointer to a store filter struct with mapstructure tags. Empty values
// are ignored; repeated parameters decode into slices.
func decodeFilter(q url.Values, out any) error {
	input := make(map[string]any, len(q))

	for key, values := range q {
		if _, ok := reservedParams[key]; ok {
			continue
		}

		nonEmpty := make([]string, 0, len(values))
		for _, v := range values {
			if v != "" {
				nonEmpty = append(nonEmpty, v)
			}
		}

		switch len(nonEmpty) {
		case 0:
		case 1:
			input[key] = nonEmpty[0]
		default:
			input[key] = nonEmpty
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("creating filter decoder: %w", err)
	}

	if err := dec.Decode(input); err != nil {
		var mErr *mapstructure.Error

		fields := map[string]string{"filter": err.Error()}
		if errors.As(err, &mErr) && len(mErr.Errors) > 0 {
			fields = map[string]string{"filter": strings.Join(mErr.Errors, "; ")}
		}

		return &store.ValidationError{Fields: fields}
	}

	return nil
}

// requireUUIDs rejects malformed UUID filter values and rewrites valid
// ones in canonical form.
func requireUUIDs(values map[string]*string) error {
	for field, v := range values {
		if v == nil {
			continue
		}

		id, err := uuid.Parse(*v)
		if err != nil {
			return &store.ValidationError{Fields: map[string]string{
				field: fmt.Sprintf("%q is not a valid UUID", *v),
			}}
		}

		*v = id.String()
	}

	return nil
}

// parseIDParam extracts the numeric {id} URL parameter. A malformed id
// addresses no resource, so it is reported as not found.
func parseIDParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, store.ErrNotFound
	}

	return uint(id), nil
}

// parseUUIDParam extracts the UUID {id} URL parameter in canonical form.
func parseUUIDParam(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", store.ErrNotFound
	}

	return id.String(), nil
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)

	var typeErr *json.UnmarshalTypeError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return &store.ValidationError{Fields: map[string]string{
			"body": "request body is required",
		}}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return &store.ValidationError{Fields: map[string]string{
			typeErr.Field: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}}
	}

	return &store.ValidationError{Fields: map[string]string{
		"body": "invalid request body",
	}}
}

// optional records whether a JSON field was present, distinguishing an
// explicit null from an absent field.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true

	if string(b) == "null" {
		o.Value = nil

		return nil
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	o.Value = &v

	return nil
}

// idSet converts an optional id list into store semantics: nil when the
// field was absent, a non-nil (possibly empty) slice otherwise.
func idSet(ids *[]uint) []uint {
	if ids == nil {
		return nil
	}

	out := make([]uint, 0, len(*ids))

	return append(out, (*ids)...)
}

// fieldErrors accumulates per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) required(field string, present bool) {
	if !present {
		f[field] = "this field is required"
	}
}

func (f fieldErrors) notBlank(field string, v *string) {
	if v != nil && strings.TrimSpace(*v) == "" {
		f[field] = "this field may not be blank"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}

	return &store.ValidationError{Fields: f}
}

// parseList reads list options and, when filter is not nil, decodes the
// filter parameters into it. On failure the error response is written
// and false returned.
func (s *server) parseList(
	w http.ResponseWriter, r *http.Request, filter any,
) (store.ListOptions, bool) {
	q := r.URL.Query()

	opts, err := parseListOptions(q)
	if err != nil {
		s.writeStoreError(w, r, err)

		return opts, false
	}

	if filter != nil {
		if err := decodeFilter(q, filter); err != nil {
			s.writeStoreError(w, r, err)

			return opts, false
		}
	}

	return opts, true
}

// assign copies *src into *dst when src is set.
func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
