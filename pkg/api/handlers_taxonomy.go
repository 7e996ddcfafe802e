package api

import (
	"net/http"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
)

// --- Capabilities ---

type capabilityInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

func (in *capabilityInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	return errs.err()
}

func (in *capabilityInput) apply(c *store.Capability) {
	assign(&c.Name, in.Name)
	assign(&c.Description, in.Description)
	assign(&c.IsActive, in.IsActive)
}

func (s *server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	var f store.CapabilityFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListCapabilities(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.Capability])
}

func (s *server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	c, err := s.store.GetCapability(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *server) handleCreateCapability(w http.ResponseWriter, r *http.Request) {
	var in capabilityInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	c := &store.Capability{IsActive: true}
	in.apply(c)

	if err := s.store.CreateCapability(r.Context(), c); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *server) handleUpdateCapability(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	c, err := s.store.GetCapability(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in capabilityInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(c)

	if err := s.store.UpdateCapability(r.Context(), c); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *server) handleDeleteCapability(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteCapability(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Labels ---

type labelInput struct {
	Name *string `json:"name"`
}

func (in *labelInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	return errs.err()
}

func (s *server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.parseList(w, r, nil)
	if !ok {
		return
	}

	page, err := s.store.ListLabels(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.Label])
}

func (s *server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	l, err := s.store.GetLabel(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, l)
}

func (s *server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var in labelInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	l := &store.Label{Name: *in.Name}

	if err := s.store.CreateLabel(r.Context(), l); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, l)
}

func (s *server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	l, err := s.store.GetLabel(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in labelInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	assign(&l.Name, in.Name)

	if err := s.store.UpdateLabel(r.Context(), l); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, l)
}

func (s *server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteLabel(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Test types ---

type testTypeInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (in *testTypeInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	return errs.err()
}

func (in *testTypeInput) apply(t *store.TestType) {
	assign(&t.Name, in.Name)
	assign(&t.Description, in.Description)
}

func (s *server) handleListTestTypes(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.parseList(w, r, nil)
	if !ok {
		return
	}

	page, err := s.store.ListTestTypes(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.TestType])
}

func (s *server) handleGetTestType(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	t, err := s.store.GetTestType(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleCreateTestType(w http.ResponseWriter, r *http.Request) {
	var in testTypeInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	t := &store.TestType{}
	in.apply(t)

	if err := s.store.CreateTestType(r.Context(), t); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (s *server) handleUpdateTestType(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	t, err := s.store.GetTestType(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in testTypeInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(t)

	if err := s.store.UpdateTestType(r.Context(), t); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleDeleteTestType(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteTestType(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
