package templates

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/heracles-fit/heracles/internal/auth"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"
	"github.com/heracles-fit/heracles/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=templates_mocks_test.go -package=templates_test

type templatesRepo interface {
	Create(ctx context.Context, template Template) (*Template, error)
	Get(ctx context.Context, id int) (*Template, error)
	ListByUser(ctx context.Context, userID int) ([]Template, error)
	Update(ctx context.Context, template *Template) error
	Delete(ctx context.Context, id int) error
}

type SaveTemplateRequest struct {
	Name  string          `json:"name"`
	Notes *string         `json:"notes"`
	Items json.RawMessage `json:"items"`
}

type Handler struct {
	repo templatesRepo
}

func NewHandler(repo templatesRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.list")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	templates, err := handler.repo.ListByUser(ctx, identity.ID)
	if err != nil {
		log.Errorf("list templates for user %d: %s", identity.ID, err)
		http.Error(w, "failed to get templates", http.StatusInternalServerError)
		return
	}

	templatesJson, err := json.Marshal(templates)
	if err != nil {
		log.Errorf("marshal templates: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, templatesJson, http.StatusOK)
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.create")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	req, ok := decodeSaveRequest(w, r)
	if !ok {
		return
	}

	template, err := handler.repo.Create(ctx, Template{
		UserID: identity.ID,
		Name:   req.Name,
		Notes:  req.Notes,
		Items:  req.Items,
	})
	if err != nil {
		log.Errorf("create template for user %d: %s", identity.ID, err)
		http.Error(w, "failed to create template", http.StatusInternalServerError)
		return
	}

	templateJson, err := json.Marshal(template)
	if err != nil {
		log.Errorf("marshal template: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, templateJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.get")
	defer span.End()

	template, ok := handler.ownedTemplate(ctx, w, r)
	if !ok {
		return
	}

	templateJson, err := json.Marshal(template)
	if err != nil {
		log.Errorf("marshal template: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, templateJson, http.StatusOK)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.update")
	defer span.End()

	template, ok := handler.ownedTemplate(ctx, w, r)
	if !ok {
		return
	}

	req, ok := decodeSaveRequest(w, r)
	if !ok {
		return
	}

	template.Name = req.Name
	template.Notes = req.Notes
	template.Items = req.Items

	if err := handler.repo.Update(ctx, template); err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			pkg.WriteJSONError(w, "template not found", http.StatusNotFound)
			return
		}
		log.Errorf("update template %d: %s", template.ID, err)
		http.Error(w, "failed to update template", http.StatusInternalServerError)
		return
	}

	templateJson, err := json.Marshal(template)
	if err != nil {
		log.Errorf("marshal template: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, templateJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.delete")
	defer span.End()

	template, ok := handler.ownedTemplate(ctx, w, r)
	if !ok {
		return
	}

	if err := handler.repo.Delete(ctx, template.ID); err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			pkg.WriteJSONError(w, "template not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete template %d: %s", template.ID, err)
		http.Error(w, "failed to delete template", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"ok":true}`)
}

// ownedTemplate mirrors the workout ownership rule: non-owned ids
// render as not-found.
func (handler *Handler) ownedTemplate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Template, bool) {
	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return nil, false
	}

	template, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrTemplateNotFound) {
		pkg.WriteJSONError(w, "template not found", http.StatusNotFound)
		return nil, false
	} else if err != nil {
		log.Errorf("get template %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	if !identity.IsAdmin() && template.UserID != identity.ID {
		pkg.WriteJSONError(w, "template not found", http.StatusNotFound)
		return nil, false
	}

	return template, true
}

func decodeSaveRequest(w http.ResponseWriter, r *http.Request) (*SaveTemplateRequest, bool) {
	var req SaveTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("template, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return nil, false
	}
	if req.Name == "" {
		pkg.WriteJSONError(w, "name is required", http.StatusBadRequest)
		return nil, false
	}
	if len(req.Items) == 0 {
		req.Items = json.RawMessage(`[]`)
	}
	return &req, true
}
