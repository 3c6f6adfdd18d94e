package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/controller"
	"github.com/sells-group/tract-overlays/internal/expr"
	"github.com/sells-group/tract-overlays/internal/overlay"
	"github.com/sells-group/tract-overlays/internal/render"
)

type overlayList struct {
	Default  string               `json:"default"`
	Palette  overlay.Palette      `json:"palette"`
	Overlays []overlay.Definition `json:"overlays"`
}

type sessionResponse struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Status    controller.Status `json:"status"`
}

type selectRequest struct {
	Overlay string `json:"overlay"`
}

type selectResponse struct {
	Result controller.SwitchResult `json:"result"`
	Active string                  `json:"active"`
}

// styleSource is the part of render.StyleMap the style endpoint needs.
type styleSource interface {
	Document() render.Document
	Revision() int
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"cache":    s.cache.Stats(),
	})
}

func (s *Server) handleListOverlays(w http.ResponseWriter, r *http.Request) {
	set := s.opts.Overlays
	writeJSON(w, http.StatusOK, overlayList{
		Default:  set.Default().ID,
		Palette:  set.Palette(),
		Overlays: set.All(),
	})
}

func (s *Server) overlayParam(w http.ResponseWriter, r *http.Request) (overlay.Definition, bool) {
	id := chi.URLParam(r, "id")
	def, ok := s.opts.Overlays.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown overlay "+strconv.Quote(id))
	}
	return def, ok
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	def, ok := s.overlayParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, overlay.BuildLegend(def, s.opts.Overlays.Palette()))
}

func (s *Server) handleExpression(w http.ResponseWriter, r *http.Request) {
	def, ok := s.overlayParam(w, r)
	if !ok {
		return
	}
	body, err := s.cache.GetOrBuild("overlays/"+def.ID+"/expression", func() ([]byte, error) {
		return json.Marshal(expr.Compile(def, s.opts.Overlays.Palette()))
	})
	if err != nil {
		s.log.Error("encode expression", zap.String("overlay", def.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode expression")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// waitRequested reports whether the client asked to block until the view
// settles.
func waitRequested(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(s.newView)
	if errors.Is(err, ErrSessionLimit) {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := sess.View.Mount(r.Context()); err != nil {
		s.sessions.Remove(sess.ID)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("session created", zap.String("session", sess.ID))

	w.Header().Set("Location", "/sessions/"+sess.ID)
	if waitRequested(r) {
		if err := sess.View.Wait(r.Context()); err != nil {
			writeError(w, http.StatusGatewayTimeout, "view still loading")
			return
		}
		if sess.View.State() == controller.StateFailed {
			s.writeUnavailable(w, sess)
			return
		}
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt, Status: sess.View.Status()})
}

// session resolves the {sid} parameter, writing 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
	}
	return sess, ok
}

// writeUnavailable reports a view that cannot serve its map yet: 502 for a
// failed geometry load, 409 while loading or after unmount.
func (s *Server) writeUnavailable(w http.ResponseWriter, sess *Session) {
	st := sess.View.Status()
	if st.State == controller.StateFailed {
		writeJSON(w, http.StatusBadGateway, map[string]string{"state": string(st.State), "error": st.Error})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"state": string(st.State)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if waitRequested(r) {
		if err := sess.View.Wait(r.Context()); err != nil {
			writeError(w, http.StatusGatewayTimeout, "view still loading")
			return
		}
	}
	st := sess.View.Status()
	if st.State == controller.StateFailed {
		s.writeUnavailable(w, sess)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt, Status: st})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if !s.sessions.Remove(sid) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.cache.Invalidate(sid)
	s.log.Info("session removed", zap.String("session", sid))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Overlay == "" {
		writeError(w, http.StatusBadRequest, "overlay is required")
		return
	}

	res, err := sess.View.Select(req.Overlay)
	resp := selectResponse{Result: res, Active: sess.View.Active()}
	switch res {
	case controller.SwitchApplied, controller.SwitchAlreadyActive:
		writeJSON(w, http.StatusOK, resp)
	case controller.SwitchUnknownOverlay:
		writeJSON(w, http.StatusNotFound, resp)
	case controller.SwitchNotReady:
		s.writeUnavailable(w, sess)
	default:
		s.log.Error("overlay switch failed", zap.String("session", sess.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	m, ready := sess.View.Map()
	if !ready {
		s.writeUnavailable(w, sess)
		return
	}
	doc, ok := m.(styleSource)
	if !ok {
		writeError(w, http.StatusNotImplemented, "map does not produce a style document")
		return
	}

	key := sess.ID + "/style/" + strconv.Itoa(doc.Revision())
	body, err := s.cache.GetOrBuild(key, func() ([]byte, error) {
		return json.Marshal(doc.Document())
	})
	if err != nil {
		s.log.Error("encode style", zap.String("session", sess.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode style")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	enriched, ready := sess.View.Enriched()
	if !ready {
		s.writeUnavailable(w, sess)
		return
	}

	body, err := s.cache.GetOrBuild(sess.ID+"/source", enriched.MarshalJSON)
	if err != nil {
		s.log.Error("encode source", zap.String("session", sess.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode source")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.View.State() != controller.StateReady {
		s.writeUnavailable(w, sess)
		return
	}

	geoid := chi.URLParam(r, "geoid")
	ins, found, err := sess.View.Inspect(geoid)
	if err != nil {
		s.log.Error("inspect feature", zap.String("geoid", geoid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "inspect feature")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown feature "+strconv.Quote(geoid))
		return
	}
	writeJSON(w, http.StatusOK, ins)
}
