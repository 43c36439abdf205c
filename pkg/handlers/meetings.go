package handlers

import (
	"net/http"
	"strings"
	"time"

	"ebe-backend/pkg/config"
	"ebe-backend/pkg/database"
	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"
	"ebe-backend/pkg/video"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const roomTokenTTL = 2 * time.Hour

type MeetingsHandler struct {
	config *config.Config
	db     database.Store
	video  *video.TokenService
}

func NewMeetingsHandler(cfg *config.Config, db database.Store, vt *video.TokenService) *MeetingsHandler {
	return &MeetingsHandler{config: cfg, db: db, video: vt}
}

// POST /api/clubs/{clubID}/meetings
func (h *MeetingsHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")

	var req models.CreateMeetingRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.ScheduledAt.IsZero() {
		utils.WriteValidationErrorResponse(w, "title and scheduled_at required", "")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 60
	}

	// 仅 admin/moderator 可以排期会议
	if _, ok := requireClubStaff(w, h.db, clubID, user.ID); !ok {
		return
	}

	meeting := &models.Meeting{
		ClubID:             clubID,
		Title:              req.Title,
		CreatedBy:          user.ID,
		ScheduledAt:        req.ScheduledAt,
		DurationMinutes:    req.DurationMinutes,
		Status:             models.MeetingScheduled,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
		RoomID:             uuid.New().String(),
	}
	if err := h.db.CreateMeeting(meeting); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create meeting")
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"meeting": meeting})
}

// GET /api/clubs/{clubID}/meetings
func (h *MeetingsHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")
	if _, ok := requireClubMember(w, h.db, clubID, user.ID); !ok {
		return
	}

	meetings, err := h.db.ListClubMeetings(clubID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list meetings")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"meetings": meetings, "total": len(meetings)})
}

// GET /api/meetings/{meetingID}
func (h *MeetingsHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	user, meeting, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}
	if _, ok := requireClubMember(w, h.db, meeting.ClubID, user.ID); !ok {
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"meeting": meeting})
}

// POST /api/meetings/{meetingID}/start
func (h *MeetingsHandler) StartMeeting(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, models.MeetingInProgress)
}

// POST /api/meetings/{meetingID}/complete
func (h *MeetingsHandler) CompleteMeeting(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, models.MeetingCompleted)
}

// POST /api/meetings/{meetingID}/cancel
func (h *MeetingsHandler) CancelMeeting(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, models.MeetingCancelled)
}

// POST /api/meetings/{meetingID}/recording/start
func (h *MeetingsHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, models.MeetingRecording)
}

// POST /api/meetings/{meetingID}/recording/stop
func (h *MeetingsHandler) StopRecording(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, models.MeetingInProgress)
}

// changeStatus 统一处理会议状态迁移：校验权限、校验状态机、落库
func (h *MeetingsHandler) changeStatus(w http.ResponseWriter, r *http.Request, next models.MeetingStatus) {
	user, meeting, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}
	if _, ok := requireClubStaff(w, h.db, meeting.ClubID, user.ID); !ok {
		return
	}

	if !meeting.Status.CanTransition(next) {
		utils.WriteConflictResponse(w, "Meeting cannot move from "+string(meeting.Status)+" to "+string(next))
		return
	}
	if err := h.db.UpdateMeetingStatus(meeting.ID, next); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update meeting status")
		return
	}
	meeting.Status = next
	utils.WriteSuccessResponse(w, map[string]interface{}{"meeting": meeting})
}

// POST /api/meetings/{meetingID}/token
//
// 普通成员在开启等候室的会议中必须先被准入才能取房间令牌。
func (h *MeetingsHandler) RoomToken(w http.ResponseWriter, r *http.Request) {
	user, meeting, ok := h.loadMeeting(w, r)
	if !ok {
		return
	}
	role, ok := requireClubMember(w, h.db, meeting.ClubID, user.ID)
	if !ok {
		return
	}

	if !h.video.Enabled() {
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "VIDEO_DISABLED", "Video provider is not configured", "")
		return
	}

	providerRole := "guest"
	if role.IsPrivileged() {
		providerRole = "host"
	} else if meeting.WaitingRoomEnabled {
		p, err := h.db.GetWaitingParticipant(meeting.ID, user.ID)
		if err != nil || p.Status != models.WaitingStatusAdmitted {
			utils.WriteForbiddenResponse(w, "Not admitted to this meeting")
			return
		}
	}

	token, err := h.video.RoomToken(meeting.RoomID, user.ID, providerRole, roomTokenTTL)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to issue room token")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"token":   token,
		"room_id": meeting.RoomID,
		"role":    providerRole,
	})
}

func (h *MeetingsHandler) loadMeeting(w http.ResponseWriter, r *http.Request) (*models.User, *models.Meeting, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, nil, false
	}
	meetingID := chiRoute.URLParam(r, "meetingID")
	meeting, err := h.db.GetMeeting(meetingID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteNotFoundResponse(w, "Meeting not found")
		} else {
			utils.WriteInternalServerErrorResponse(w, "Failed to load meeting")
		}
		return nil, nil, false
	}
	return user, meeting, true
}
