package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/user/wa-announcer/internal/dispatch"
	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
)

// apiUser labels announcements created over HTTP in the shared store.
const apiUser = "api"

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.CountDirectory(store.KindGroup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	contacts, err := s.store.CountDirectory(store.KindContact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": s.session.Connected(),
		"groups":    groups,
		"contacts":  contacts,
	})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListDirectory(store.KindGroup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": entries, "total": len(entries)})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListDirectory(store.KindContact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": entries, "total": len(entries)})
}

func (s *Server) handleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Provider string `json:"provider"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := s.formatter.Format(r.Context(), req.Text, req.Provider)
	if err != nil {
		L_error("api: formatting failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	ann := &store.Announcement{
		ID:               uuid.NewString(),
		UserID:           apiUser,
		OriginalInput:    req.Text,
		FormattedContent: result.Content,
		Provider:         result.Provider,
		FormattingMs:     result.ElapsedMs,
	}
	if err := s.store.CreateAnnouncement(ann); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, ann)
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		user = apiUser
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	anns, err := s.store.ListAnnouncementsByUser(user, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"announcements": anns, "total": len(anns)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ann, err := s.store.GetAnnouncement(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ann == nil {
		writeError(w, http.StatusNotFound, "announcement not found")
		return
	}

	summary, err := dispatch.History(s.store, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// resolveContent picks the message body for a send: an explicit message, or
// the formatted content of a stored announcement. Ad-hoc messages get a
// synthetic announcement id so the ledger still records them.
func (s *Server) resolveContent(w http.ResponseWriter, announcementID, message string) (string, string, bool) {
	if announcementID != "" {
		ann, err := s.store.GetAnnouncement(announcementID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return "", "", false
		}
		if ann == nil {
			writeError(w, http.StatusNotFound, "announcement not found")
			return "", "", false
		}
		return ann.ID, ann.FormattedContent, true
	}
	if message == "" {
		writeError(w, http.StatusBadRequest, "message or announcementId is required")
		return "", "", false
	}
	return "manual_" + uuid.NewString(), message, true
}

func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target         string `json:"target"`
		Message        string `json:"message"`
		AnnouncementID string `json:"announcementId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	annID, content, ok := s.resolveContent(w, req.AnnouncementID, req.Message)
	if !ok {
		return
	}

	entry, err := s.resolver.Resolve(store.KindGroup, req.Target)
	if err != nil {
		writeError(w, http.StatusNotFound, "group not found: "+req.Target)
		return
	}

	record := &store.DeliveryRecord{
		ID:             uuid.NewString(),
		AnnouncementID: annID,
		TargetType:     store.TargetGroup,
		TargetID:       entry.ID,
		TargetName:     entry.Name,
	}
	if err := s.store.CreateDeliveryRecord(record); err != nil {
		L_error("api: failed to create delivery record", "error", err)
	}

	res := s.dispatcher.SendToGroup(r.Context(), entry.ID, content)
	s.settle(record.ID, req.AnnouncementID, res.Success, res.Error)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

func (s *Server) handleSendPersonal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone          string `json:"phone"`
		Message        string `json:"message"`
		AnnouncementID string `json:"announcementId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	annID, content, ok := s.resolveContent(w, req.AnnouncementID, req.Message)
	if !ok {
		return
	}

	record := &store.DeliveryRecord{
		ID:             uuid.NewString(),
		AnnouncementID: annID,
		TargetType:     store.TargetPersonal,
		TargetID:       s.resolver.NormalizeContact(req.Phone),
		TargetName:     req.Phone,
	}
	if err := s.store.CreateDeliveryRecord(record); err != nil {
		L_error("api: failed to create delivery record", "error", err)
	}

	res := s.dispatcher.SendToPersonal(r.Context(), req.Phone, content)
	s.settle(record.ID, req.AnnouncementID, res.Success, res.Error)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnnouncementID string               `json:"announcementId"`
		Recipients     []dispatch.Recipient `json:"recipients"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AnnouncementID == "" {
		writeError(w, http.StatusBadRequest, "announcementId is required")
		return
	}
	if len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "recipients is required")
		return
	}

	ann, err := s.store.GetAnnouncement(req.AnnouncementID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ann == nil {
		writeError(w, http.StatusNotFound, "announcement not found")
		return
	}

	res := s.dispatcher.SendBroadcast(r.Context(), ann, req.Recipients)
	if res.Sent > 0 {
		if err := s.store.MarkAnnouncementSent(ann.ID); err != nil {
			L_warn("api: failed to mark announcement sent", "error", err)
		}
	}

	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// settle finalizes a single-send ledger row and marks a stored announcement
// sent on success. Ad-hoc sends (empty announcementID) skip the mark.
func (s *Server) settle(recordID, announcementID string, success bool, sendErr string) {
	status := store.DeliverySent
	if !success {
		status = store.DeliveryFailed
	}
	if err := s.store.UpdateDeliveryStatus(recordID, status, sendErr); err != nil {
		L_warn("api: failed to update delivery status", "record", recordID, "error", err)
	}
	if success && announcementID != "" {
		if err := s.store.MarkAnnouncementSent(announcementID); err != nil {
			L_warn("api: failed to mark announcement sent", "error", err)
		}
	}
}
