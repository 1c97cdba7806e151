/*
handlers.go - HTTP handlers for the incident finance engine

PURPOSE:
  Exposes the finance engine via REST. Handlers parse JSON, delegate to the
  domain services, and translate typed domain errors into HTTP statuses.

ENDPOINTS:
  Master data:
    POST /api/master/rates                 Add an effective-dated rate
    GET  /api/master/rates                 List rates for kind+subject
    POST /api/master/accounts              Upsert an account
    GET  /api/master/accounts              List accounts
    POST /api/master/vendors               Upsert a vendor
    GET  /api/master/vendors               List vendors
    POST /api/master/chains                Upsert a chain template
    GET  /api/master/chains                List chain templates

  Per incident (under /api/incidents/{incidentID}):
    time-entries, requisitions, approvals, purchase-orders, invoices,
    claims, costs, budgets - see server.go for the full route table

ERROR MAPPING:
  - 400: validation, bad state transitions, rate resolution failures
  - 404: missing records
  - 409: finalization conflicts
  - 503: store unavailable
  - 500: everything else

SERVICE ASSEMBLY:
  Services are cheap structs over store handles, so each incident-scoped
  request assembles them from the router on the fly. The router caches the
  underlying store handles.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/incident-finance/finance"
	"github.com/warp/incident-finance/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Router *sqlite.Router
	Logger *zap.Logger
}

// NewHandler creates a new handler over the store router.
func NewHandler(router *sqlite.Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Router: router, Logger: logger}
}

// incidentServices bundles the per-incident domain services.
type incidentServices struct {
	store       finance.TxIncidentStore
	timesheet   *finance.Timesheet
	procurement *finance.Procurement
	claims      *finance.Claims
	costs       *finance.CostLedger
	chains      *finance.ChainEngine
}

func (h *Handler) services(r *http.Request) (*incidentServices, error) {
	master, err := h.Router.Master()
	if err != nil {
		return nil, err
	}
	store, err := h.Router.Incident(chi.URLParam(r, "incidentID"))
	if err != nil {
		return nil, err
	}

	rates := &finance.RateResolver{Master: master}
	svc := &incidentServices{
		store:       store,
		timesheet:   finance.NewTimesheet(store, rates, h.Logger),
		procurement: finance.NewProcurement(store, master, h.Logger),
		claims:      finance.NewClaims(store, master, h.Logger),
		costs:       finance.NewCostLedger(store, h.Logger),
		chains:      finance.NewChainEngine(master),
	}
	svc.chains.Register(finance.EntityRequisitions, svc.procurement)
	svc.chains.Register(finance.EntityClaims, svc.claims)
	return svc, nil
}

// =============================================================================
// MASTER DATA HANDLERS
// =============================================================================

func (h *Handler) CreateRateSchedule(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto RateScheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate := finance.RateSchedule{
		ID:      dto.ID,
		Kind:    finance.RateKind(dto.Kind),
		Subject: dto.Subject,
	}
	if rate.ID == "" {
		rate.ID = uuid.NewString()
	}
	if rate.Kind != finance.RateLabor && rate.Kind != finance.RateEquipment {
		writeDomainError(w, &finance.ValidationError{Field: "kind", Message: "must be labor or equipment"})
		return
	}
	if rate.Subject == "" {
		writeDomainError(w, &finance.ValidationError{Field: "subject", Message: "required"})
		return
	}
	if rate.RatePerHour, err = parseAmount("rate_per_hour", dto.RatePerHour); err != nil {
		writeDomainError(w, err)
		return
	}
	if rate.OvertimeMultiplier, err = parseAmount("overtime_multiplier", dto.OvertimeMultiplier); err != nil {
		writeDomainError(w, err)
		return
	}
	if rate.RatePerDay, err = parseAmount("rate_per_day", dto.RatePerDay); err != nil {
		writeDomainError(w, err)
		return
	}
	if rate.EffectiveFrom, err = parseDate("effective_from", dto.EffectiveFrom); err != nil {
		writeDomainError(w, err)
		return
	}
	if dto.EffectiveTo != "" {
		to, err := parseDate("effective_to", dto.EffectiveTo)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		rate.EffectiveTo = &to
	}

	if err := master.SaveRateSchedule(r.Context(), rate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateScheduleDTO(rate))
}

func (h *Handler) ListRateSchedules(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	kind := finance.RateKind(r.URL.Query().Get("kind"))
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeDomainError(w, &finance.ValidationError{Field: "subject", Message: "required"})
		return
	}

	rates, err := master.RateSchedulesFor(r.Context(), kind, subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]RateScheduleDTO, len(rates))
	for i, rate := range rates {
		dtos[i] = toRateScheduleDTO(rate)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto AccountDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.Code == "" || dto.Name == "" {
		writeDomainError(w, &finance.ValidationError{Field: "code", Message: "code and name are required"})
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}

	account := finance.Account{ID: dto.ID, Code: dto.Code, Name: dto.Name, Category: dto.Category}
	if err := master.SaveAccount(r.Context(), account); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	accounts, err := master.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = AccountDTO{ID: a.ID, Code: a.Code, Name: a.Name, Category: a.Category}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveVendor(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto VendorDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.Name == "" {
		writeDomainError(w, &finance.ValidationError{Field: "name", Message: "required"})
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}

	vendor := finance.Vendor{ID: dto.ID, Name: dto.Name, ContactEmail: dto.ContactEmail, PaymentTerms: dto.PaymentTerms}
	if err := master.SaveVendor(r.Context(), vendor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	vendors, err := master.ListVendors(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]VendorDTO, len(vendors))
	for i, v := range vendors {
		dtos[i] = VendorDTO{ID: v.ID, Name: v.Name, ContactEmail: v.ContactEmail, PaymentTerms: v.PaymentTerms}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveChainTemplate(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto ChainTemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(dto.Steps) == 0 {
		writeDomainError(w, &finance.ValidationError{Field: "steps", Message: "at least one step required"})
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}

	tmpl := finance.ChainTemplate{ID: dto.ID, Name: dto.Name, Steps: dto.Steps}
	if err := master.SaveChainTemplate(r.Context(), tmpl); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ListChainTemplates(w http.ResponseWriter, r *http.Request) {
	master, err := h.Router.Master()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	templates, err := master.ListChainTemplates(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ChainTemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = ChainTemplateDTO{ID: t.ID, Name: t.Name, Steps: t.Steps}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto CreateTimeEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.CreateTimeEntryRequest{
		PersonID:          dto.PersonID,
		Role:              dto.Role,
		OperationalPeriod: dto.OperationalPeriod,
		RateRef:           dto.RateRef,
		EquipmentRef:      dto.EquipmentRef,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.HoursWorked, err = parseAmount("hours_worked", dto.HoursWorked); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.OvertimeHours, err = parseAmount("overtime_hours", dto.OvertimeHours); err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := svc.timesheet.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(*entry))
}

func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := svc.timesheet.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TimeEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTimeEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entry, err := svc.timesheet.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto UpdateTimeEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.UpdateTimeEntryRequest{
		EntryID:           chi.URLParam(r, "id"),
		OperationalPeriod: dto.OperationalPeriod,
		RateRef:           dto.RateRef,
		EquipmentRef:      dto.EquipmentRef,
	}
	if dto.HoursWorked != nil {
		d, err := parseAmount("hours_worked", *dto.HoursWorked)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		req.HoursWorked = &d
	}
	if dto.OvertimeHours != nil {
		d, err := parseAmount("overtime_hours", *dto.OvertimeHours)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		req.OvertimeHours = &d
	}

	entry, err := svc.timesheet.Update(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) SubmitTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entry, err := svc.timesheet.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) ApproveTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto ActorDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, posted, err := svc.timesheet.Approve(r.Context(), finance.ApproveTimeEntryRequest{
		EntryID:   chi.URLParam(r, "id"),
		ActorID:   dto.ActorID,
		AccountID: dto.AccountID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":      toTimeEntryDTO(*entry),
		"cost_entry": toCostEntryDTO(*posted),
	})
}

func (h *Handler) RejectTimeEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto ActorDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := svc.timesheet.Reject(r.Context(), chi.URLParam(r, "id"), dto.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry))
}

// =============================================================================
// REQUISITION HANDLERS
// =============================================================================

func (h *Handler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto CreateRequisitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.CreateRequisitionRequest{
		ReqNumber:   dto.ReqNumber,
		RequestorID: dto.RequestorID,
		Description: dto.Description,
		ChainRef:    dto.ChainRef,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.AmountEstimated, err = parseAmount("amount_estimated", dto.AmountEstimated); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := svc.procurement.CreateRequisition(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequisitionDTO(*created))
}

func (h *Handler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reqs, err := svc.procurement.ListRequisitions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]RequisitionDTO, len(reqs))
	for i, rq := range reqs {
		dtos[i] = toRequisitionDTO(rq)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRequisition(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rq, err := svc.procurement.GetRequisition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequisitionDTO(*rq))
}

func (h *Handler) SubmitRequisition(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rq, err := svc.procurement.SubmitRequisition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequisitionDTO(*rq))
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

func (h *Handler) RecordApproval(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto RecordApprovalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	outcome, err := svc.chains.RecordApproval(r.Context(), svc.store, finance.RecordApprovalRequest{
		Entity:   dto.Entity,
		EntityID: dto.EntityID,
		Step:     dto.Step,
		ActorID:  dto.ActorID,
		Action:   finance.ChainAction(dto.Action),
		Comments: dto.Comments,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChainOutcomeDTO{
		NextStep: outcome.NextStep,
		Complete: outcome.Complete,
		Denied:   outcome.Denied,
	})
}

func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entity := r.URL.Query().Get("entity")
	entityID := r.URL.Query().Get("entity_id")
	if entity == "" || entityID == "" {
		writeDomainError(w, &finance.ValidationError{Field: "entity", Message: "entity and entity_id are required"})
		return
	}

	records, err := svc.store.ApprovalsFor(r.Context(), entity, entityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ApprovalRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toApprovalRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PURCHASE ORDER HANDLERS
// =============================================================================

func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto CreatePurchaseOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.CreatePurchaseOrderRequest{
		PONumber:      dto.PONumber,
		VendorID:      dto.VendorID,
		RequisitionID: dto.RequisitionID,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.AmountAuthorized, err = parseAmount("amount_authorized", dto.AmountAuthorized); err != nil {
		writeDomainError(w, err)
		return
	}

	po, err := svc.procurement.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseOrderDTO(*po))
}

func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	po, err := svc.procurement.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseOrderDTO(*po))
}

func (h *Handler) ReceiveAgainstPO(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto ReceiveDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.ReceiveRequest{
		POID:  chi.URLParam(r, "id"),
		Notes: dto.Notes,
		Final: dto.Final,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Quantity, err = parseAmount("quantity", dto.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Amount, err = parseAmount("amount", dto.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, po, err := svc.procurement.Receive(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"receipt":        toReceiptDTO(*receipt),
		"purchase_order": toPurchaseOrderDTO(*po),
	})
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	receipts, err := svc.procurement.ReceiptsForPO(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ReceiptDTO, len(receipts))
	for i, rec := range receipts {
		dtos[i] = toReceiptDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto CreateInvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.CreateInvoiceRequest{
		POID:                chi.URLParam(r, "id"),
		VendorInvoiceNumber: dto.VendorInvoiceNumber,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Amount, err = parseAmount("amount", dto.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	inv, err := svc.procurement.CreateInvoice(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	invs, err := svc.store.ListInvoicesForPO(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]InvoiceDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto ActorDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, posted, err := svc.procurement.ApproveInvoice(r.Context(), finance.ApproveInvoiceRequest{
		InvoiceID: chi.URLParam(r, "id"),
		ActorID:   dto.ActorID,
		AccountID: dto.AccountID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice":    toInvoiceDTO(*inv),
		"cost_entry": toCostEntryDTO(*posted),
	})
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto CreateClaimDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.CreateClaimRequest{
		ClaimType:   dto.ClaimType,
		ClaimantID:  dto.ClaimantID,
		Description: dto.Description,
		ChainRef:    dto.ChainRef,
	}
	if req.DateReported, err = parseDate("date_reported", dto.DateReported); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.AmountEstimated, err = parseAmount("amount_estimated", dto.AmountEstimated); err != nil {
		writeDomainError(w, err)
		return
	}

	claim, err := svc.claims.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimDTO(*claim))
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claims, err := svc.claims.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ClaimDTO, len(claims))
	for i, c := range claims {
		dtos[i] = toClaimDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claim, err := svc.claims.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claim, err := svc.claims.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

func (h *Handler) PayClaim(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto PayClaimDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.PayClaimRequest{
		ClaimID:   chi.URLParam(r, "id"),
		ActorID:   dto.ActorID,
		AccountID: dto.AccountID,
	}
	if req.Amount, err = parseAmount("amount", dto.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	claim, posted, err := svc.claims.Pay(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claim":      toClaimDTO(*claim),
		"cost_entry": toCostEntryDTO(*posted),
	})
}

// =============================================================================
// COST LEDGER HANDLERS
// =============================================================================

func (h *Handler) PostCostEntry(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto PostCostEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.PostCostEntryRequest{
		AccountID:   dto.AccountID,
		Description: dto.Description,
		Source:      finance.SourceManual,
		Tag:         dto.Tag,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Amount, err = parseAmount("amount", dto.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := svc.costs.Post(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostEntryDTO(*entry))
}

func (h *Handler) ListCostEntries(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := svc.costs.EntriesOn(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]CostEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCostEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) FinalizeDay(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto FinalizeDayDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := finance.FinalizeDayRequest{
		FinalizedBy: dto.FinalizedBy,
		Notes:       dto.Notes,
	}
	if req.Date, err = parseDate("date", dto.Date); err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := svc.costs.FinalizeDay(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDailySummaryDTO(*summary))
}

func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := svc.costs.SummaryFor(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailySummaryDTO(*summary))
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

func (h *Handler) SaveBudget(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var dto BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.AccountID == "" {
		writeDomainError(w, &finance.ValidationError{Field: "account_id", Message: "required"})
		return
	}
	if dto.ID == "" {
		dto.ID = uuid.NewString()
	}

	amount, err := parseAmount("amount_budgeted", dto.AmountBudgeted)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	budget := finance.Budget{
		ID:             dto.ID,
		AccountID:      dto.AccountID,
		AmountBudgeted: amount,
		Notes:          dto.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := svc.store.SaveBudget(r.Context(), budget); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	budgets, err := svc.store.ListBudgets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = BudgetDTO{ID: b.ID, AccountID: b.AccountID, AmountBudgeted: b.AmountBudgeted.String(), Notes: b.Notes}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps typed domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, finance.ErrAlreadyFinalized) || errors.Is(err, finance.ErrDateFinalized):
		writeError(w, http.StatusConflict, "Finalization conflict", err)
	case finance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, finance.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
