package handlers

import (
	"errors"
	"net/http"

	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/utils"
	"ebe-backend/pkg/waitingroom"

	chiRoute "github.com/go-chi/chi/v5"
)

// WaitingRoomHandler exposes the admission state machine over HTTP. All
// domain decisions live in the waitingroom service; this layer only maps
// errors to status codes.
type WaitingRoomHandler struct {
	svc *waitingroom.Service
}

func NewWaitingRoomHandler(svc *waitingroom.Service) *WaitingRoomHandler {
	return &WaitingRoomHandler{svc: svc}
}

// POST /api/meetings/{meetingID}/waiting-room/join
func (h *WaitingRoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	meetingID := chiRoute.URLParam(r, "meetingID")

	result, err := h.svc.RequestJoin(meetingID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

// GET /api/meetings/{meetingID}/waiting-room/participants
func (h *WaitingRoomHandler) ListWaiting(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	meetingID := chiRoute.URLParam(r, "meetingID")

	participants, err := h.svc.ListWaiting(meetingID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"participants": participants,
		"total":        len(participants),
	})
}

// POST /api/meetings/{meetingID}/waiting-room/admit
func (h *WaitingRoomHandler) Admit(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// POST /api/meetings/{meetingID}/waiting-room/reject
func (h *WaitingRoomHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *WaitingRoomHandler) decide(w http.ResponseWriter, r *http.Request, admit bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	meetingID := chiRoute.URLParam(r, "meetingID")

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.UserID == "" {
		utils.WriteValidationErrorResponse(w, "user_id required", "")
		return
	}

	var (
		participant interface{}
		message     string
	)
	if admit {
		participant, err = h.svc.Admit(meetingID, user.ID, req.UserID)
		message = "Participant admitted"
	} else {
		participant, err = h.svc.Reject(meetingID, user.ID, req.UserID)
		message = "Participant rejected"
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":     message,
		"participant": participant,
	})
}

// GET /api/meetings/{meetingID}/waiting-room/status
func (h *WaitingRoomHandler) Status(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	meetingID := chiRoute.URLParam(r, "meetingID")

	result, err := h.svc.Status(meetingID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

func (h *WaitingRoomHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitingroom.ErrMeetingNotFound):
		utils.WriteNotFoundResponse(w, "Meeting not found")
	case errors.Is(err, waitingroom.ErrNoParticipant):
		utils.WriteNotFoundResponse(w, "No waiting record for this participant")
	case errors.Is(err, waitingroom.ErrNotAMember):
		utils.WriteForbiddenResponse(w, "Not a member of this club")
	case errors.Is(err, waitingroom.ErrNotPrivileged):
		utils.WriteForbiddenResponse(w, "Admin or moderator role required")
	default:
		utils.WriteInternalServerErrorResponse(w, "Waiting room operation failed")
	}
}
