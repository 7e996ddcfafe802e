package api

import (
	"net/http"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
)

type testCaseResponse struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	TestType    *store.TestType `json:"test_type"`
	Tags        []store.Label   `json:"tags"`
	IsActive    bool            `json:"is_active"`
	CreatedBy   *uint           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toTestCaseResponse(tc *store.TestCase) testCaseResponse {
	return testCaseResponse{
		ID:          tc.ID,
		Title:       tc.Title,
		Description: tc.Description,
		TestType:    tc.TestType,
		Tags:        nonNil(tc.Tags),
		IsActive:    tc.IsActive,
		CreatedBy:   tc.CreatedByID,
		CreatedAt:   tc.CreatedAt,
		UpdatedAt:   tc.UpdatedAt,
	}
}

// nonNil makes empty relations encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}

type testCaseInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	TestTypeID  optional[uint] `json:"test_type_id"`
	TagIDs      *[]uint        `json:"tag_ids"`
	IsActive    *bool          `json:"is_active"`
}

func (in *testCaseInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("title", in.Title != nil)
	}

	errs.notBlank("title", in.Title)

	return errs.err()
}

func (in *testCaseInput) apply(tc *store.TestCase) {
	assign(&tc.Title, in.Title)
	assign(&tc.Description, in.Description)
	assign(&tc.IsActive, in.IsActive)

	if in.TestTypeID.Set {
		tc.TestTypeID = in.TestTypeID.Value
	}
}

func (s *server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	var f store.TestCaseFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListTestCases(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toTestCaseResponse)
}

func (s *server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	tc, err := s.store.GetTestCase(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toTestCaseResponse(tc))
}

func (s *server) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	var in testCaseInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	tc := &store.TestCase{
		IsActive:    true,
		CreatedByID: &userFromContext(r.Context()).ID,
	}
	in.apply(tc)

	if err := s.store.CreateTestCase(r.Context(), tc, idSet(in.TagIDs)); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toTestCaseResponse(tc))
}

func (s *server) handleUpdateTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	tc, err := s.store.GetTestCase(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in testCaseInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(tc)

	if err := s.store.UpdateTestCase(r.Context(), tc, idSet(in.TagIDs)); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toTestCaseResponse(tc))
}

func (s *server) handleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteTestCase(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
