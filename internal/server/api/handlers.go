package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/service"
)

// Handler contains the HTTP handlers for the Stash API.
type Handler struct {
	uploads *service.UploadService
	links   *service.LinkService
	account *service.AccountService
	tokens  *service.TokenService
	db      *database.DB
	cfg     *config.Config
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(uploads *service.UploadService, links *service.LinkService, account *service.AccountService, tokens *service.TokenService, db *database.DB, cfg *config.Config) *Handler {
	return &Handler{
		uploads: uploads,
		links:   links,
		account: account,
		tokens:  tokens,
		db:      db,
		cfg:     cfg,
	}
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with a "file" field and optional "name" and
// "tags" fields. Authenticated by API token.
func (h *Handler) HandleUpload(c echo.Context) error {
	owner := ownerFromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	in := service.CreateUploadInput{
		Filename: fileHeader.Filename,
		MIMEType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Data:     src,
		Tags:     splitTags(c.FormValue("tags")),
	}
	if name := c.FormValue("name"); name != "" {
		in.DisplayName = &name
	}

	result, err := h.uploads.Create(c.Request().Context(), owner, in)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"file": result})
}

// HandleServeUpload handles GET /u/:file.
// Streams the artifact bytes with the content type inferred from the
// extension.
func (h *Handler) HandleServeUpload(c echo.Context) error {
	upload, rc, err := h.uploads.Fetch(c.Request().Context(), c.Param("file"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(upload.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if upload.Type == config.TypeFile {
		name := upload.StoredName + upload.Extension
		if upload.DisplayName != nil {
			name = *upload.DisplayName + upload.Extension
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", name))
	}

	return c.Stream(http.StatusOK, contentType, rc)
}

// HandleListUploads handles GET /api/uploads.
func (h *Handler) HandleListUploads(c echo.Context) error {
	owner := ownerFromContext(c)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	opts := service.ListOptions{
		Search: c.QueryParam("search"),
		Asc:    c.QueryParam("order") == "asc",
		Limit:  limit,
		Offset: offset,
	}

	uploads, err := h.uploads.List(c.Request().Context(), owner, opts)
	if err != nil {
		return mapServiceError(c, err)
	}

	rows := make([]echo.Map, 0, len(uploads))
	for _, u := range uploads {
		rows = append(rows, echo.Map{
			"fileName":      u.StoredName,
			"fileExtension": u.Extension,
			"name":          u.DisplayName,
			"type":          u.Type,
			"size":          u.Size,
			"tags":          u.Tags,
			"uploadedAt":    u.UploadedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"total": len(rows), "rows": rows})
}

type editUploadRequest struct {
	Name *string  `json:"name"`
	Tags []string `json:"tags"`
}

// HandleEditUpload handles PUT /api/uploads/:file.
// Only tags and the display name are mutable.
func (h *Handler) HandleEditUpload(c echo.Context) error {
	owner := ownerFromContext(c)
	storedName := strings.TrimSuffix(c.Param("file"), extOf(c.Param("file")))

	var req editUploadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.uploads.Edit(c.Request().Context(), owner, storedName, req.Name, req.Tags); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "upload updated"})
}

// HandleDeleteUpload handles DELETE /api/uploads/:file.
func (h *Handler) HandleDeleteUpload(c echo.Context) error {
	owner := ownerFromContext(c)

	result, err := h.uploads.Delete(c.Request().Context(), owner, c.Param("file"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleDeleteAllUploads handles DELETE /api/uploads.
// Deletes every upload the owner has and reports partial failures.
func (h *Handler) HandleDeleteAllUploads(c echo.Context) error {
	owner := ownerFromContext(c)

	report, err := h.uploads.DeleteAll(c.Request().Context(), owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// HandleDeleteByKey handles GET /api/delete?key=.
// The delete-key flow bypasses owner authentication on exact key match.
func (h *Handler) HandleDeleteByKey(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key is required"})
	}

	result, err := h.uploads.DeleteByKey(c.Request().Context(), key)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleCreateLink handles POST /api/links.
func (h *Handler) HandleCreateLink(c echo.Context) error {
	owner := ownerFromContext(c)

	var in service.CreateLinkInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.links.Create(c.Request().Context(), owner, in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleRedirect handles GET /l/:code.
// Resolves the short code, counts the click, and redirects.
func (h *Handler) HandleRedirect(c echo.Context) error {
	target, err := h.links.Resolve(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Redirect(http.StatusFound, target)
}

// HandleEditLink handles PUT /api/links/:code.
func (h *Handler) HandleEditLink(c echo.Context) error {
	owner := ownerFromContext(c)

	var in service.UpdateLinkInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.links.Edit(c.Request().Context(), owner, c.Param("code"), in); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "link updated"})
}

// HandleDeleteLink handles DELETE /api/links/:code.
func (h *Handler) HandleDeleteLink(c echo.Context) error {
	owner := ownerFromContext(c)

	if err := h.links.Delete(c.Request().Context(), owner, c.Param("code")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "link deleted"})
}

// HandleDeleteLinkByKey handles GET /api/links/delete?key=.
func (h *Handler) HandleDeleteLinkByKey(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key is required"})
	}

	if err := h.links.DeleteByKey(c.Request().Context(), key); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "link deleted"})
}

// HandleListLinks handles GET /api/links.
func (h *Handler) HandleListLinks(c echo.Context) error {
	owner := ownerFromContext(c)

	links, err := h.links.List(c.Request().Context(), owner)
	if err != nil {
		return mapServiceError(c, err)
	}

	rows := make([]echo.Map, 0, len(links))
	for _, l := range links {
		rows = append(rows, echo.Map{
			"code":      l.Code,
			"url":       l.URL,
			"shortUrl":  fmt.Sprintf("%s/l/%s", h.cfg.BaseURL, l.Code),
			"clicks":    l.Clicks,
			"limit":     l.ClickLimit,
			"expiresAt": l.ExpiresAt,
			"tags":      l.Tags,
			"createdAt": l.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"total": len(rows), "rows": rows})
}

type ensureAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// HandleEnsureAccount handles PUT /api/account.
// Provisions the local account row for an externally authenticated owner.
func (h *Handler) HandleEnsureAccount(c echo.Context) error {
	owner := ownerFromContext(c)

	var req ensureAccountRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username is required"})
	}

	user, err := h.account.EnsureAccount(c.Request().Context(), owner, req.Username, req.Email)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":           user.ID,
		"username":     user.Username,
		"streamerMode": user.StreamerMode,
	})
}

type accountSettingsRequest struct {
	StreamerMode *bool `json:"streamerMode"`
}

// HandleAccountSettings handles PUT /api/account/settings.
func (h *Handler) HandleAccountSettings(c echo.Context) error {
	owner := ownerFromContext(c)

	var req accountSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.StreamerMode == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no settings provided"})
	}

	if err := h.account.SetStreamerMode(c.Request().Context(), owner, *req.StreamerMode); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "settings updated"})
}

// HandleSpaceUsed handles GET /api/account/space.
func (h *Handler) HandleSpaceUsed(c echo.Context) error {
	owner := ownerFromContext(c)

	usage, err := h.account.SpaceUsed(c.Request().Context(), owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, usage)
}

// HandleExport handles GET /api/account/export.
// Streams a zip of the account's metadata and artifacts.
func (h *Handler) HandleExport(c echo.Context) error {
	owner := ownerFromContext(c)

	filename := fmt.Sprintf("%s-%s-export.zip", h.cfg.SiteTitle, time.Now().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", filename))
	c.Response().WriteHeader(http.StatusOK)

	if _, err := h.account.Export(c.Request().Context(), owner, c.Response()); err != nil {
		// Headers are already out; all we can do is log through the
		// request logger by returning the error.
		return err
	}
	return nil
}

// HandleDeleteAccount handles DELETE /api/account.
// Cascades through tokens, links, uploads, and the user record.
func (h *Handler) HandleDeleteAccount(c echo.Context) error {
	owner := ownerFromContext(c)

	report, err := h.account.DeleteAccount(c.Request().Context(), owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

type issueTokenRequest struct {
	Label string `json:"label"`
}

// HandleIssueToken handles POST /api/tokens.
func (h *Handler) HandleIssueToken(c echo.Context) error {
	owner := ownerFromContext(c)

	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Label == "" {
		req.Label = "uploader"
	}

	issued, err := h.tokens.Issue(c.Request().Context(), owner, req.Label)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, issued)
}

// HandleListTokens handles GET /api/tokens.
func (h *Handler) HandleListTokens(c echo.Context) error {
	owner := ownerFromContext(c)

	tokens, err := h.tokens.List(c.Request().Context(), owner)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": tokens})
}

// HandleRevokeToken handles DELETE /api/tokens/:id.
func (h *Handler) HandleRevokeToken(c echo.Context) error {
	owner := ownerFromContext(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid token id"})
	}

	if err := h.tokens.Revoke(c.Request().Context(), owner, id); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "token revoked"})
}

type uploaderConfigRequest struct {
	Uploader    string `json:"uploader" form:"uploader"`
	Token       string `json:"token" form:"token"`
	Destination string `json:"destination" form:"destination"`
}

// HandleUploaderConfig handles POST /api/config.
// Renders a ready-to-import config file for a supported uploader tool.
func (h *Handler) HandleUploaderConfig(c echo.Context) error {
	var req uploaderConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	doc, err := h.tokens.RenderUploaderConfig(c.Request().Context(), req.Uploader, req.Token, req.Destination)
	if err != nil {
		return mapServiceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrGenerationExhausted):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "could not allocate a unique identifier, try again",
		})
	case errors.Is(err, service.ErrInvalidURL):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrLinkExhausted):
		return c.JSON(http.StatusGone, echo.Map{"error": "link click limit reached"})
	case errors.Is(err, service.ErrLinkExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "link has expired"})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid API token"})
	case errors.Is(err, service.ErrUnknownUploader):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported uploader tool"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// splitTags parses the comma-separated tag form field.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func extOf(fileRef string) string {
	if i := strings.LastIndex(fileRef, "."); i >= 0 {
		return fileRef[i:]
	}
	return ""
}
