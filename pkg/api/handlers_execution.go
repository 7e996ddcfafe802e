package api

import (
	"net/http"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
)

// --- Test scenarios ---

type testCaseSummary struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

type scenarioResponse struct {
	ID          uint              `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	TestCases   []testCaseSummary `json:"test_cases"`
	Labels      []store.Label     `json:"labels"`
	CreatedBy   *uint             `json:"created_by"`
	UpdatedBy   *uint             `json:"updated_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toScenarioResponse(sc *store.TestScenario) scenarioResponse {
	cases := make([]testCaseSummary, 0, len(sc.TestCases))
	for _, tc := range sc.TestCases {
		cases = append(cases, testCaseSummary{ID: tc.ID, Title: tc.Title})
	}

	return scenarioResponse{
		ID:          sc.ID,
		Name:        sc.Name,
		Description: sc.Description,
		TestCases:   cases,
		Labels:      nonNil(sc.Labels),
		CreatedBy:   sc.CreatedByID,
		UpdatedBy:   sc.UpdatedByID,
		CreatedAt:   sc.CreatedAt,
		UpdatedAt:   sc.UpdatedAt,
	}
}

type scenarioInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	TestCaseIDs *[]uint `json:"test_case_ids"`
	LabelIDs    *[]uint `json:"label_ids"`
}

func (in *scenarioInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	return errs.err()
}

func (in *scenarioInput) members() store.ScenarioMembers {
	return store.ScenarioMembers{
		TestCaseIDs: idSet(in.TestCaseIDs),
		LabelIDs:    idSet(in.LabelIDs),
	}
}

func (s *server) handleListTestScenarios(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.parseList(w, r, nil)
	if !ok {
		return
	}

	page, err := s.store.ListTestScenarios(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toScenarioResponse)
}

func (s *server) handleGetTestScenario(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	sc, err := s.store.GetTestScenario(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toScenarioResponse(sc))
}

func (s *server) handleCreateTestScenario(w http.ResponseWriter, r *http.Request) {
	var in scenarioInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	author := userFromContext(r.Context()).ID
	sc := &store.TestScenario{
		Name:        *in.Name,
		CreatedByID: &author,
		UpdatedByID: &author,
	}
	assign(&sc.Description, in.Description)

	if err := s.store.CreateTestScenario(r.Context(), sc, in.members()); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toScenarioResponse(sc))
}

func (s *server) handleUpdateTestScenario(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	sc, err := s.store.GetTestScenario(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in scenarioInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	author := userFromContext(r.Context()).ID
	assign(&sc.Name, in.Name)
	assign(&sc.Description, in.Description)
	sc.UpdatedByID = &author

	if err := s.store.UpdateTestScenario(r.Context(), sc, in.members()); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toScenarioResponse(sc))
}

func (s *server) handleDeleteTestScenario(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteTestScenario(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Test runs ---

type runResponse struct {
	ID          uint               `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Scenarios   []scenarioResponse `json:"scenarios"`
	Labels      []store.Label      `json:"labels"`
	Results     []store.TestResult `json:"results"`
	CreatedBy   *uint              `json:"created_by"`
	UpdatedBy   *uint              `json:"updated_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toRunResponse(run *store.TestRun) runResponse {
	scenarios := make([]scenarioResponse, 0, len(run.Scenarios))
	for i := range run.Scenarios {
		scenarios = append(scenarios, toScenarioResponse(&run.Scenarios[i]))
	}

	return runResponse{
		ID:          run.ID,
		Name:        run.Name,
		Description: run.Description,
		Scenarios:   scenarios,
		Labels:      nonNil(run.Labels),
		Results:     nonNil(run.Results),
		CreatedBy:   run.CreatedByID,
		UpdatedBy:   run.UpdatedByID,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
}

type runInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ScenarioIDs *[]uint `json:"scenario_ids"`
	LabelIDs    *[]uint `json:"label_ids"`
}

func (in *runInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	return errs.err()
}

func (in *runInput) members() store.RunMembers {
	return store.RunMembers{
		ScenarioIDs: idSet(in.ScenarioIDs),
		LabelIDs:    idSet(in.LabelIDs),
	}
}

func (s *server) handleListTestRuns(w http.ResponseWriter, r *http.Request) {
	var f store.TestRunFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListTestRuns(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toRunResponse)
}

func (s *server) handleGetTestRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	run, err := s.store.GetTestRun(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *server) handleCreateTestRun(w http.ResponseWriter, r *http.Request) {
	var in runInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	author := userFromContext(r.Context()).ID
	run := &store.TestRun{
		Name:        *in.Name,
		CreatedByID: &author,
		UpdatedByID: &author,
	}
	assign(&run.Description, in.Description)

	if err := s.store.CreateTestRun(r.Context(), run, in.members()); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (s *server) handleUpdateTestRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	run, err := s.store.GetTestRun(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in runInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	author := userFromContext(r.Context()).ID
	assign(&run.Name, in.Name)
	assign(&run.Description, in.Description)
	run.UpdatedByID = &author

	if err := s.store.UpdateTestRun(r.Context(), run, in.members()); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *server) handleDeleteTestRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteTestRun(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Test results ---

type testResultInput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleCreateTestResult appends a result to a run. Results are never
// updated or deleted through the API.
func (s *server) handleCreateTestResult(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in testResultInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	result := &store.TestResult{
		TestRunID: id,
		Status:    in.Status,
		Message:   in.Message,
	}

	if err := s.store.CreateTestResult(r.Context(), result); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, result)
}
