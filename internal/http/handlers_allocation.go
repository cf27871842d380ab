package http

import (
	"errors"
	"net/http"

	"costalloc/internal/allocation"
	"costalloc/internal/core"
	"costalloc/internal/log"
	"costalloc/internal/services"
)

// handleAllocations returns a freshly loaded worksheet without opening a
// session.
func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ws, err := s.allocations.Load(r.Context(), params.Period, params.Type)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Data(newWorksheetView(ws, nil)).Write(w)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	params, err := ParsePeriodParams(body, s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	sess, err := s.sessions.Open(r.Context(), params.Period, params.Type)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/sessions/"+sess.ID).
		Data(newSessionView(sess)).
		Write(w)
}

// handleGetSession returns the session worksheet. With ?refresh=1 the
// latest stored state is merged in first; pending edits win.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		sess *allocation.Session
		err  error
	)
	if isTruthy(r.URL.Query().Get("refresh")) {
		sess, err = s.sessions.Refresh(r.Context(), id)
	} else {
		sess, err = s.sessions.Get(id)
	}
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Data(newSessionView(sess)).Write(w)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	s.sessions.Close(id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleEditRow sets pct or carryOverIn of one standard row. Non-numeric
// values are stored as zero and reported as a warning.
func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	categoryID := sanitizeInput(r.PathValue("category"))

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	field, err := allocation.ParseField(body.Get("field"))
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if !body.Has("value") {
		UnprocessableEntityError("missing value").Write(w)
		return
	}

	row, err := s.sessions.Edit(r.Context(), id, categoryID, field, body.Get("value"))
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		sess, gerr := s.sessions.Get(id)
		if gerr != nil {
			s.writeError(w, r, gerr, log.OpEdit)
			return
		}
		NewJSONResponse().
			Data(newRowView(row, sess.Dirty)).
			Warning(verr.Error()).
			Write(w)
	case err != nil:
		s.writeError(w, r, err, log.OpEdit)
	default:
		sess, gerr := s.sessions.Get(id)
		if gerr != nil {
			s.writeError(w, r, gerr, log.OpEdit)
			return
		}
		NewJSONResponse().Data(newRowView(row, sess.Dirty)).Write(w)
	}
}

// handleSaveSession persists the session. A ledger write-back failure is
// reported with 207 and the saved worksheet; the period record is already
// stored at that point.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	_, err := s.sessions.Save(r.Context(), id)
	if err != nil && !services.IsPartialWrite(err) {
		s.writeError(w, r, err, log.OpSave)
		return
	}

	sess, gerr := s.sessions.Get(id)
	if gerr != nil {
		s.writeError(w, r, gerr, log.OpSave)
		return
	}

	resp := NewJSONResponse().Data(newSessionView(sess))
	if err != nil {
		s.structured.LogError(r.Context(), "Ledger write-back incomplete", err, log.ComponentHTTP, log.OpSave,
			log.NewFields().WithAllocation(sess.Period().String(), string(sess.Type())))
		resp.Status(http.StatusMultiStatus).Warning(err.Error())
	}
	resp.Write(w)
}

func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	if s.cascade == nil {
		ErrorResponse(http.StatusServiceUnavailable, "cascade is disabled").Write(w)
		return
	}

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	params, err := ParsePeriodParams(body, s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	written, err := s.cascade.Cascade(r.Context(), params.Period, params.Type)
	if err != nil {
		s.writeError(w, r, err, log.OpCascade)
		return
	}

	view := cascadeView{From: params.Period.Key(), Type: string(params.Type), Updated: make([]string, 0, len(written))}
	for _, p := range written {
		view.Updated = append(view.Updated, p.Key())
	}
	NewJSONResponse().Data(view).Write(w)
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		NotFoundError("session not found").Write(w)
	case errors.Is(err, core.ErrUnknownCategory):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, allocation.ErrSaveInProgress):
		ConflictError(err.Error()).Write(w)
	case errors.Is(err, allocation.ErrNotEditable),
		errors.Is(err, allocation.ErrUnknownField),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidProjectType):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		s.structured.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		InternalServerError("internal error").Write(w)
	}
}
