package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/google/uuid"
)

// recentBoardLogLimit caps the board logs sub-resource.
const recentBoardLogLimit = 50

// --- Relays ---

type relayInput struct {
	RelayName     *string             `json:"relay_name"`
	ModelType     *string             `json:"model_type"`
	Status        *string             `json:"status"`
	IPAddress     *string             `json:"ip_address"`
	MACAddress    *string             `json:"mac_address"`
	PortCount     *int                `json:"port_count"`
	LastCheckedAt optional[time.Time] `json:"last_checked_at"`
}

func (in *relayInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("relay_name", in.RelayName != nil)
	}

	errs.notBlank("relay_name", in.RelayName)

	if in.PortCount != nil && *in.PortCount < 0 {
		errs["port_count"] = "ensure this value is greater than or equal to 0"
	}

	return errs.err()
}

func (in *relayInput) apply(rl *store.Relay) {
	assign(&rl.RelayName, in.RelayName)
	assign(&rl.ModelType, in.ModelType)
	assign(&rl.Status, in.Status)
	assign(&rl.IPAddress, in.IPAddress)
	assign(&rl.MACAddress, in.MACAddress)
	assign(&rl.PortCount, in.PortCount)

	if in.LastCheckedAt.Set {
		rl.LastCheckedAt = in.LastCheckedAt.Value
	}
}

func (s *server) handleListRelays(w http.ResponseWriter, r *http.Request) {
	var f store.RelayFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListRelays(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.Relay])
}

func (s *server) handleGetRelay(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	rl, err := s.store.GetRelay(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, rl)
}

func (s *server) handleCreateRelay(w http.ResponseWriter, r *http.Request) {
	var in relayInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	rl := &store.Relay{}
	in.apply(rl)

	if err := s.store.CreateRelay(r.Context(), rl); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, rl)
}

func (s *server) handleUpdateRelay(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	rl, err := s.store.GetRelay(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in relayInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(rl)

	if err := s.store.UpdateRelay(r.Context(), rl); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, rl)
}

func (s *server) handleDeleteRelay(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteRelay(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Test PCs ---

type testPCInput struct {
	Hostname        *string             `json:"hostname"`
	Status          *string             `json:"status"`
	OSVersion       *string             `json:"os_version"`
	IPAddress       *string             `json:"ip_address"`
	DomainName      *string             `json:"domain_name"`
	LastHeartbeatAt optional[time.Time] `json:"last_heartbeat_at"`
}

func (in *testPCInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("hostname", in.Hostname != nil)
	}

	errs.notBlank("hostname", in.Hostname)

	return errs.err()
}

func (in *testPCInput) apply(pc *store.TestPC) {
	assign(&pc.Hostname, in.Hostname)
	assign(&pc.Status, in.Status)
	assign(&pc.OSVersion, in.OSVersion)
	assign(&pc.IPAddress, in.IPAddress)
	assign(&pc.DomainName, in.DomainName)

	if in.LastHeartbeatAt.Set {
		pc.LastHeartbeatAt = in.LastHeartbeatAt.Value
	}
}

func (s *server) handleListTestPCs(w http.ResponseWriter, r *http.Request) {
	var f store.TestPCFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	page, err := s.store.ListTestPCs(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, identity[store.TestPC])
}

func (s *server) handleGetTestPC(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	pc, err := s.store.GetTestPC(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, pc)
}

func (s *server) handleCreateTestPC(w http.ResponseWriter, r *http.Request) {
	var in testPCInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	pc := &store.TestPC{}
	in.apply(pc)

	if err := s.store.CreateTestPC(r.Context(), pc); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, pc)
}

func (s *server) handleUpdateTestPC(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	pc, err := s.store.GetTestPC(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in testPCInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(pc)

	if err := s.store.UpdateTestPC(r.Context(), pc); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, pc)
}

func (s *server) handleDeleteTestPC(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteTestPC(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Boards ---

type relaySummary struct {
	ID        string `json:"id"`
	RelayName string `json:"relay_name"`
	Status    string `json:"status"`
}

type testPCSummary struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Status   string `json:"status"`
}

type boardResponse struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Project              string             `json:"project"`
	Platform             string             `json:"platform"`
	Status               string             `json:"status"`
	TestFarm             string             `json:"test_farm"`
	HardwareSerialNumber string             `json:"hardware_serial_number"`
	BoardIP              string             `json:"board_ip"`
	IsAlive              bool               `json:"is_alive"`
	IsLocked             bool               `json:"is_locked"`
	LastHeartbeatAt      *time.Time         `json:"last_heartbeat_at"`
	Relay                *relaySummary      `json:"relay"`
	TestPC               *testPCSummary     `json:"test_pc"`
	Capabilities         []store.Capability `json:"capabilities"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func toBoardResponse(b *store.Board) boardResponse {
	resp := boardResponse{
		ID:                   b.ID,
		Name:                 b.Name,
		Project:              b.Project,
		Platform:             b.Platform,
		Status:               b.Status,
		TestFarm:             b.TestFarm,
		HardwareSerialNumber: b.HardwareSerialNumber,
		BoardIP:              b.BoardIP,
		IsAlive:              b.IsAlive,
		IsLocked:             b.IsLocked,
		LastHeartbeatAt:      b.LastHeartbeatAt,
		Capabilities:         b.Capabilities,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}

	if resp.Capabilities == nil {
		resp.Capabilities = []store.Capability{}
	}

	if b.Relay != nil {
		resp.Relay = &relaySummary{
			ID:        b.Relay.ID,
			RelayName: b.Relay.RelayName,
			Status:    b.Relay.Status,
		}
	}

	if b.TestPC != nil {
		resp.TestPC = &testPCSummary{
			ID:       b.TestPC.ID,
			Hostname: b.TestPC.Hostname,
			Status:   b.TestPC.Status,
		}
	}

	return resp
}

type boardInput struct {
	Name                 *string             `json:"name"`
	Project              *string             `json:"project"`
	Platform             *string             `json:"platform"`
	Status               *string             `json:"status"`
	TestFarm             *string             `json:"test_farm"`
	HardwareSerialNumber *string             `json:"hardware_serial_number"`
	BoardIP              *string             `json:"board_ip"`
	IsAlive              *bool               `json:"is_alive"`
	IsLocked             *bool               `json:"is_locked"`
	LastHeartbeatAt      optional[time.Time] `json:"last_heartbeat_at"`
	RelayID              optional[string]    `json:"relay_id"`
	TestPCID             optional[string]    `json:"test_pc_id"`
	CapabilityIDs        *[]uint             `json:"capability_ids"`
}

func (in *boardInput) validate(full bool) error {
	errs := fieldErrors{}
	if full {
		errs.required("name", in.Name != nil)
	}

	errs.notBlank("name", in.Name)

	for field, ref := range map[string]optional[string]{
		"relay_id":   in.RelayID,
		"test_pc_id": in.TestPCID,
	} {
		if ref.Value == nil {
			continue
		}

		if _, err := uuid.Parse(*ref.Value); err != nil {
			errs[field] = "must be a valid UUID"
		}
	}

	return errs.err()
}

func (in *boardInput) apply(b *store.Board) {
	assign(&b.Name, in.Name)
	assign(&b.Project, in.Project)
	assign(&b.Platform, in.Platform)
	assign(&b.Status, in.Status)
	assign(&b.TestFarm, in.TestFarm)
	assign(&b.HardwareSerialNumber, in.HardwareSerialNumber)
	assign(&b.BoardIP, in.BoardIP)
	assign(&b.IsAlive, in.IsAlive)
	assign(&b.IsLocked, in.IsLocked)

	if in.LastHeartbeatAt.Set {
		b.LastHeartbeatAt = in.LastHeartbeatAt.Value
	}

	if in.RelayID.Set {
		b.RelayID = canonicalUUID(in.RelayID.Value)
	}

	if in.TestPCID.Set {
		b.TestPCID = canonicalUUID(in.TestPCID.Value)
	}
}

// canonicalUUID lower-cases a validated UUID so it matches stored ids.
func canonicalUUID(id *string) *string {
	if id == nil {
		return nil
	}

	c := uuid.MustParse(*id).String()

	return &c
}

func (s *server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	var f store.BoardFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	if err := requireUUIDs(map[string]*string{
		"relay_id":   f.RelayID,
		"test_pc_id": f.TestPCID,
	}); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	page, err := s.store.ListBoards(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toBoardResponse)
}

func (s *server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	b, err := s.store.GetBoard(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toBoardResponse(b))
}

func (s *server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var in boardInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(true); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	b := &store.Board{}
	in.apply(b)

	if err := s.store.CreateBoard(r.Context(), b, idSet(in.CapabilityIDs)); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, toBoardResponse(b))
}

func (s *server) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	b, err := s.store.GetBoard(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in boardInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := in.validate(r.Method == http.MethodPut); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	in.apply(b)

	if err := s.store.UpdateBoard(r.Context(), b, idSet(in.CapabilityIDs)); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toBoardResponse(b))
}

func (s *server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if err := s.store.DeleteBoard(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListBoardLogs returns the newest logs of one board.
func (s *server) handleListBoardLogs(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	logs, err := s.store.ListRecentBoardLogs(r.Context(), id, recentBoardLogLimit)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, logs)
}

type boardLogInput struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// handleCreateBoardLog appends a log line to a board.
func (s *server) handleCreateBoardLog(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	var in boardLogInput
	if err := decodeBody(r, &in); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	if strings.TrimSpace(in.Message) == "" {
		s.writeStoreError(w, r, fieldErrors{"message": "this field is required"}.err())

		return
	}

	l := &store.BoardLog{
		BoardID: id,
		Level:   strings.ToUpper(in.Level),
		Message: in.Message,
	}

	if err := s.store.CreateBoardLog(r.Context(), l); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, l)
}

// --- PC stats ---

type pcStatsResponse struct {
	ID            uint      `json:"id"`
	TestPCID      string    `json:"test_pc"`
	Hostname      string    `json:"hostname"`
	Status        string    `json:"status"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

func toPCStatsResponse(st *store.PCStats) pcStatsResponse {
	resp := pcStatsResponse{
		ID:            st.ID,
		TestPCID:      st.TestPCID,
		Status:        st.Status,
		CPUPercent:    st.CPUPercent,
		MemoryPercent: st.MemoryPercent,
		DiskPercent:   st.DiskPercent,
		Timestamp:     st.Timestamp,
	}

	if st.TestPC != nil {
		resp.Hostname = st.TestPC.Hostname
	}

	return resp
}

func (s *server) handleListPCStats(w http.ResponseWriter, r *http.Request) {
	var f store.PCStatsFilter

	opts, ok := s.parseList(w, r, &f)
	if !ok {
		return
	}

	if err := requireUUIDs(map[string]*string{"test_pc_id": f.TestPCID}); err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	page, err := s.store.ListPCStats(r.Context(), f, opts)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writePage(w, page, toPCStatsResponse)
}

func (s *server) handleGetPCStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	st, err := s.store.GetPCStats(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toPCStatsResponse(st))
}
