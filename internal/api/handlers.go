// Package api exposes the ledger sheets and invoices over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/service"
)

const (
	maxDocumentBody = 4 << 20
	maxUploadMemory = 32 << 20
)

// Handler coordinates HTTP requests with the ledger services.
type Handler struct {
	bench    *service.Workbench
	invoices *service.InvoiceService
	summary  *service.SummaryService
	gate     *service.Gate
	logger   *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(bench *service.Workbench, invoices *service.InvoiceService, summary *service.SummaryService, gate *service.Gate, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Handler{bench: bench, invoices: invoices, summary: summary, gate: gate, logger: logger}
}

// Routes returns the mux behind the passphrase gate and request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return logRequests(h.logger, requirePassphrase(h.gate, mux))
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)

	mux.HandleFunc("GET /api/gate", h.gateStatus)
	mux.HandleFunc("POST /api/gate/setup", h.gateSetup)
	mux.HandleFunc("POST /api/gate/verify", h.gateVerify)
	mux.HandleFunc("POST /api/gate/change", h.gateChange)

	mux.HandleFunc("GET /api/{category}/{year}/{month}", h.getDocument)
	mux.HandleFunc("PUT /api/{category}/{year}/{month}", h.putDocument)
	mux.HandleFunc("POST /api/{category}/{year}/{month}/rows", h.addRow)
	mux.HandleFunc("PATCH /api/{category}/{year}/{month}/rows/{id}", h.updateRow)
	mux.HandleFunc("DELETE /api/{category}/{year}/{month}/rows/{id}", h.deleteRow)
	mux.HandleFunc("POST /api/customers/{year}/{month}/save/{id}", h.saveCustomer)
	mux.HandleFunc("POST /api/customers/{year}/{month}/clear/{id}", h.clearCustomer)
	mux.HandleFunc("PUT /api/tools/titles/{index}", h.renameToolTable)

	mux.HandleFunc("GET /api/summary/{year}/{month}", h.monthSummary)

	mux.HandleFunc("GET /api/invoices/{year}/{month}", h.listInvoices)
	mux.HandleFunc("POST /api/invoices/{year}/{month}", h.attachInvoices)
	mux.HandleFunc("DELETE /api/invoices/{year}/{month}/{id}", h.deleteInvoice)
	mux.HandleFunc("GET /api/invoices/{year}/{month}/{id}/raw", h.rawInvoice)

	mux.HandleFunc("POST /api/flush", h.flush)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

type changePassphraseRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func (h *Handler) gateStatus(w http.ResponseWriter, r *http.Request) {
	configured, err := h.gate.Configured(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

func (h *Handler) gateSetup(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.gate.Setup(r.Context(), req.Passphrase); err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"configured": true})
}

func (h *Handler) gateVerify(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.gate.Verify(r.Context(), req.Passphrase); err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) gateChange(w http.ResponseWriter, r *http.Request) {
	var req changePassphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.gate.Change(r.Context(), req.Current, req.Next); err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DocumentResponse is a partition document with where it was read from.
type DocumentResponse struct {
	Partition string              `json:"partition"`
	Source    service.Source      `json:"source,omitempty"`
	Saved     *service.SaveResult `json:"saved,omitempty"`
	Document  model.Document      `json:"document"`
}

type rowRequest struct {
	List   string       `json:"list"`
	Fields model.Fields `json:"fields"`
}

type titleRequest struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Title string `json:"title"`
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPartition(w, r)
	if !ok {
		return
	}
	doc, src, err := h.bench.Open(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Partition: p.Key(), Source: src, Document: doc})
}

func (h *Handler) putDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPartition(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}
	doc, err := model.DecodeDocument(p.Category, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	h.respondEdit(w, p)(h.bench.Replace(r.Context(), p, doc))
}

func (h *Handler) addRow(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPartition(w, r)
	if !ok {
		return
	}
	var req rowRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	h.respondEdit(w, p)(h.bench.Edit(r.Context(), p, func(d model.Document) error {
		if !d.AddRow(req.List) {
			return model.ErrRowNotFound
		}
		return nil
	}))
}

func (h *Handler) updateRow(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPartition(w, r)
	if !ok {
		return
	}
	var req rowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	h.respondEdit(w, p)(h.bench.Edit(r.Context(), p, func(d model.Document) error {
		d.UpdateRow(req.List, id, req.Fields)
		return nil
	}))
}

// deleteRow answers 200 with the unchanged document when the row is at its
// floor; the sheet keeps its minimum rows silently.
func (h *Handler) deleteRow(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPartition(w, r)
	if !ok {
		return
	}
	list, id := r.URL.Query().Get("list"), r.PathValue("id")
	h.respondEdit(w, p)(h.bench.Edit(r.Context(), p, func(d model.Document) error {
		d.DeleteRow(list, id)
		return nil
	}))
}

func (h *Handler) saveCustomer(w http.ResponseWriter, r *http.Request) {
	p, ok := monthPartition(w, r, model.CategoryCustomers)
	if !ok {
		return
	}
	id := r.PathValue("id")
	h.respondEdit(w, p)(h.bench.Edit(r.Context(), p, func(d model.Document) error {
		_, err := d.(*model.Customers).SaveRow(id)
		return err
	}))
}

func (h *Handler) clearCustomer(w http.ResponseWriter, r *http.Request) {
	p, ok := monthPartition(w, r, model.CategoryCustomers)
	if !ok {
		return
	}
	list, id := r.URL.Query().Get("list"), r.PathValue("id")
	if list == "" {
		list = model.ListActive
	}
	h.respondEdit(w, p)(h.bench.Edit(r.Context(), p, func(d model.Document) error {
		d.(*model.Customers).ClearRow(list, id)
		return nil
	}))
}

func (h *Handler) renameToolTable(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || position < 1 || position > model.ToolTableCount {
		writeError(w, http.StatusBadRequest, "validation_failed", "table index must be 1-5")
		return
	}
	var req titleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := model.NewPartition(model.CategoryTools, req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	doc, err := h.bench.RenameToolTable(r.Context(), p, position, strings.TrimSpace(req.Title))
	if errors.Is(err, model.ErrBlankTitle) {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Partition: p.Key(), Document: doc})
}

// respondEdit writes the outcome of a workbench edit.
func (h *Handler) respondEdit(w http.ResponseWriter, p model.Partition) func(model.Document, service.SaveResult, error) {
	return func(doc model.Document, res service.SaveResult, err error) {
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, DocumentResponse{Partition: p.Key(), Saved: &res, Document: doc})
		case errors.Is(err, model.ErrNoFreeSlot):
			writeError(w, http.StatusConflict, "no_free_slot", "all saved customer rows are taken")
		case errors.Is(err, model.ErrRowNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, model.ErrInvalidShape):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
	}
}

func (h *Handler) monthSummary(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	sum, err := h.summary.Month(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// InvoiceListResponse lists the invoices of one month.
type InvoiceListResponse struct {
	Source   service.Source  `json:"source"`
	Invoices []model.Invoice `json:"invoices"`
}

// AttachResponse reports stored invoices and files that failed.
type AttachResponse struct {
	Invoices []model.Invoice `json:"invoices"`
	Failures []FailureView   `json:"failures"`
}

type FailureView struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	list, src, err := h.invoices.List(r.Context(), month, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if list == nil {
		list = []model.Invoice{}
	}
	writeJSON(w, http.StatusOK, InvoiceListResponse{Source: src, Invoices: list})
}

func (h *Handler) attachInvoices(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "no files in field \"files\"")
		return
	}

	uploads := make([]service.Upload, 0, len(files))
	resp := AttachResponse{Invoices: []model.Invoice{}, Failures: []FailureView{}}
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			resp.Failures = append(resp.Failures, FailureView{Name: fh.Filename, Error: err.Error()})
			continue
		}
		uploads = append(uploads, service.Upload{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	report := h.invoices.Attach(r.Context(), uploads, month, year)
	resp.Invoices = append(resp.Invoices, report.Invoices...)
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, FailureView{Name: f.Name, Error: f.Err.Error()})
	}

	status := http.StatusCreated
	if len(resp.Invoices) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	removed, err := h.invoices.RemoveByID(r.Context(), month, year, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "invoice not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rawInvoice(w http.ResponseWriter, r *http.Request) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	data, mime, url, found := h.invoices.Payload(r.Context(), month, year, r.PathValue("id"))
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "not_found", "invoice not found")
	case url != "":
		http.Redirect(w, r, url, http.StatusFound)
	default:
		w.Header().Set("Content-Type", mime)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (h *Handler) flush(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"flushed": h.bench.FlushAll(r.Context())})
}

func yearMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, yerr := strconv.Atoi(r.PathValue("year"))
	month, merr := strconv.Atoi(r.PathValue("month"))
	if yerr != nil || merr != nil || month < 1 || month > 12 || year < 1 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid year or month")
		return 0, 0, false
	}
	return year, month, true
}

func monthPartition(w http.ResponseWriter, r *http.Request, cat model.Category) (model.Partition, bool) {
	year, month, ok := yearMonth(w, r)
	if !ok {
		return model.Partition{}, false
	}
	p, err := model.NewPartition(cat, year, month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return model.Partition{}, false
	}
	return p, true
}

func documentPartition(w http.ResponseWriter, r *http.Request) (model.Partition, bool) {
	cat, err := model.ParseCategory(r.PathValue("category"))
	if err != nil || !cat.IsDocument() {
		writeError(w, http.StatusNotFound, "not_found", "unknown category")
		return model.Partition{}, false
	}
	return monthPartition(w, r, cat)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrWrongPassphrase):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, service.ErrGateNotConfigured):
		writeError(w, http.StatusPreconditionRequired, "gate_not_configured", err.Error())
	case errors.Is(err, service.ErrGateConfigured):
		writeError(w, http.StatusConflict, "gate_configured", err.Error())
	case errors.Is(err, service.ErrPassphraseTooShort):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
