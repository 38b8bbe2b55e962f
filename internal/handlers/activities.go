package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"market-system/internal/logger"
	"market-system/internal/models"
)

const activitiesPrefix = "/api/activities/"

// ActivityHandler обслуживает администрирование активностей и витрину купонов
type ActivityHandler struct {
	service ActivityService
	log     *logger.Logger
}

// NewActivityHandler создаёт обработчик активностей
func NewActivityHandler(service ActivityService, log *logger.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		log:     log,
	}
}

// ListActivities возвращает страницу активностей по фильтрам запроса
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q, err := parsePageQuery(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.QueryForPage(r.Context(), q)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to query activities")
		return
	}

	writeJSONResponse(w, http.StatusOK, page)
}

// SaveActivity создаёт или редактирует активность
func (h *ActivityHandler) SaveActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.ActivitySaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	activity, err := h.service.Save(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to save activity")
		return
	}

	status := http.StatusCreated
	if req.ID != nil {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, activity)
}

// GetActivity возвращает активность со счётчиками выдачи.
// Неизвестный id отдаёт пустой объект.
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := extractIDFromPath(r.URL.Path, activitiesPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.service.QueryByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get activity")
		return
	}

	writeJSONResponse(w, http.StatusOK, detail)
}

// RevokeActivity аннулирует активность вместе с неиспользованными купонами
func (h *ActivityHandler) RevokeActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := extractIDFromPath(r.URL.Path, activitiesPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Revoke(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to revoke activity")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Activity revoked"})
}

// ListSeizing отдаёт витрину из кеша: tab=1 идущие раздачи, иначе предстоящие
func (h *ActivityHandler) ListSeizing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tab := models.TabSeizing
	if raw := r.URL.Query().Get("tab"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid tab")
			return
		}
		tab = models.TabType(v)
	}

	list, err := h.service.QueryForListFromCache(r.Context(), tab)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list activities from cache")
		return
	}

	writeJSONResponse(w, http.StatusOK, list)
}

// Collection маршрутизирует /api/activities
func (h *ActivityHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListActivities(w, r)
	case http.MethodPost:
		h.SaveActivity(w, r)
	default:
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item маршрутизирует /api/activities/{id} и /api/activities/{id}/revoke
func (h *ActivityHandler) Item(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/revoke") {
		h.RevokeActivity(w, r)
		return
	}
	h.GetActivity(w, r)
}

func parsePageQuery(r *http.Request) (*models.ActivityPageQuery, error) {
	values := r.URL.Query()
	q := &models.ActivityPageQuery{Name: strings.TrimSpace(values.Get("name"))}

	id, err := queryInt64(r, "id")
	if err != nil {
		return nil, err
	}
	q.ID = id

	if v, err := queryInt64(r, "type"); err != nil {
		return nil, err
	} else if v != nil {
		t := models.ActivityType(*v)
		q.Type = &t
	}

	if v, err := queryInt64(r, "status"); err != nil {
		return nil, err
	} else if v != nil {
		s := models.ActivityStatus(*v)
		q.Status = &s
	}

	if v, err := queryInt64(r, "page_no"); err != nil {
		return nil, err
	} else if v != nil {
		q.PageNo = int(*v)
	}

	if v, err := queryInt64(r, "page_size"); err != nil {
		return nil, err
	} else if v != nil {
		q.PageSize = int(*v)
	}

	return q, nil
}
