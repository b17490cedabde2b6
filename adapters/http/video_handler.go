package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/khoahotran/lecture-video/internal/application/usecase/permission"
	"github.com/khoahotran/lecture-video/internal/application/usecase/pipeline"
	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

type VideoHandler struct {
	userRepo       user.Repository
	videoRepo      video.Repository
	collectionRepo collection.Repository
	subtitleRepo   video.SubtitleRepository
	evaluator      *permission.Evaluator
	ingestUC       *pipeline.IngestUseCase
	retranscodeUC  *pipeline.RetranscodeUseCase
	visibilityUC   *pipeline.VisibilityUseCase
	subtitleUC     *pipeline.SubtitleUseCase
	deleteUC       *pipeline.DeleteUseCase
	logger         logger.Logger
}

func NewVideoHandler(
	users user.Repository,
	videos video.Repository,
	collections collection.Repository,
	subtitles video.SubtitleRepository,
	evaluator *permission.Evaluator,
	ingestUC *pipeline.IngestUseCase,
	retranscodeUC *pipeline.RetranscodeUseCase,
	visibilityUC *pipeline.VisibilityUseCase,
	subtitleUC *pipeline.SubtitleUseCase,
	deleteUC *pipeline.DeleteUseCase,
	log logger.Logger,
) *VideoHandler {
	return &VideoHandler{
		userRepo:       users,
		videoRepo:      videos,
		collectionRepo: collections,
		subtitleRepo:   subtitles,
		evaluator:      evaluator,
		ingestUC:       ingestUC,
		retranscodeUC:  retranscodeUC,
		visibilityUC:   visibilityUC,
		subtitleUC:     subtitleUC,
		deleteUC:       deleteUC,
		logger:         log,
	}
}

func paramKey(c *gin.Context, name string) (uuid.UUID, error) {
	key, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.NewInvalidInput("invalid "+name, err)
	}
	return key, nil
}

// viewer returns the requesting user, or an anonymous user when the request
// carries no known identity.
func (h *VideoHandler) viewer(c *gin.Context) (*user.User, error) {
	id, ok := GetUserIDFromGinContext(c)
	if !ok {
		return &user.User{}, nil
	}
	u, err := h.userRepo.FindByID(c.Request.Context(), id)
	if errors.Is(err, apperror.ErrNotFound) {
		return &user.User{}, nil
	}
	return u, err
}

// adminCollection loads a collection the requester administers.
func (h *VideoHandler) adminCollection(c *gin.Context, key uuid.UUID) (*collection.Collection, error) {
	u, err := h.viewer(c)
	if err != nil {
		return nil, err
	}
	if u.IsAnonymous() {
		return nil, apperror.NewUnauthorized("unknown user", nil)
	}
	col, err := h.collectionRepo.FindByKey(c.Request.Context(), key)
	if err != nil {
		return nil, err
	}
	ok, err := h.evaluator.CanAdminCollection(c.Request.Context(), u, col)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewPermissionDenied("collection admin rights required")
	}
	return col, nil
}

// adminVideo loads a video whose collection the requester administers.
func (h *VideoHandler) adminVideo(c *gin.Context) (*video.Video, error) {
	key, err := paramKey(c, "key")
	if err != nil {
		return nil, err
	}
	v, err := h.videoRepo.FindByKey(c.Request.Context(), key)
	if err != nil {
		return nil, err
	}
	if _, err := h.adminCollection(c, v.CollectionKey); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *VideoHandler) Access(c *gin.Context) {
	key, err := paramKey(c, "key")
	if err != nil {
		c.Error(err)
		return
	}
	ctx := c.Request.Context()
	u, err := h.viewer(c)
	if err != nil {
		c.Error(err)
		return
	}
	v, err := h.videoRepo.FindByKey(ctx, key)
	if err != nil {
		c.Error(err)
		return
	}
	col, err := h.collectionRepo.FindByKey(ctx, v.CollectionKey)
	if err != nil {
		c.Error(err)
		return
	}
	d, err := h.evaluator.VideoAccess(ctx, u, v, col)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, AccessDTO{VideoKey: v.Key, Decision: d})
}

func (h *VideoHandler) RetranscodeVideo(c *gin.Context) {
	v, err := h.adminVideo(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.retranscodeUC.RequestVideo(c.Request.Context(), v.Key); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "retranscode scheduled", "video_key": v.Key})
}

func (h *VideoHandler) RetranscodeCollection(c *gin.Context) {
	key, err := paramKey(c, "key")
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.adminCollection(c, key); err != nil {
		c.Error(err)
		return
	}
	if err := h.retranscodeUC.RequestCollection(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "retranscode scheduled", "collection_key": key})
}

func (h *VideoHandler) SetVisibility(c *gin.Context) {
	v, err := h.adminVideo(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request data", err))
		return
	}
	updated, err := h.visibilityUC.SetVisibility(c.Request.Context(), pipeline.VisibilityInput{
		VideoKey:       v.Key,
		IsPublic:       req.IsPublic,
		IsPrivate:      req.IsPrivate,
		IsLoggedInOnly: req.IsLoggedInOnly,
		ViewLists:      req.ViewLists,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ToVideoDTO(updated))
}

func (h *VideoHandler) SetStreamSource(c *gin.Context) {
	key, err := paramKey(c, "key")
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.adminCollection(c, key); err != nil {
		c.Error(err)
		return
	}
	var req StreamSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request data", err))
		return
	}
	if err := h.visibilityUC.SetStreamSource(c.Request.Context(), key, collection.StreamSource(req.StreamSource)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection_key": key, "stream_source": req.StreamSource})
}

func (h *VideoHandler) UploadSubtitle(c *gin.Context) {
	v, err := h.adminVideo(c)
	if err != nil {
		c.Error(err)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(apperror.NewInvalidInput("'file' is required", err))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.Error(apperror.NewInternal("failed to open file", err))
		return
	}
	defer file.Close()

	sub, err := h.subtitleUC.Upload(c.Request.Context(), pipeline.SubtitleInput{
		VideoKey: v.Key,
		Language: c.PostForm("language"),
		Filename: fileHeader.Filename,
		Body:     file,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ToSubtitleDTO(sub))
}

func (h *VideoHandler) DeleteSubtitle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperror.NewInvalidInput("invalid subtitle id", err))
		return
	}
	ctx := c.Request.Context()
	sub, err := h.subtitleRepo.FindByID(ctx, id)
	if err != nil {
		c.Error(err)
		return
	}
	v, err := h.videoRepo.FindByKey(ctx, sub.VideoKey)
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.adminCollection(c, v.CollectionKey); err != nil {
		c.Error(err)
		return
	}
	if err := h.subtitleUC.Delete(ctx, id); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *VideoHandler) CompleteUpload(c *gin.Context) {
	v, err := h.adminVideo(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.ingestUC.CompleteUpload(c.Request.Context(), v.Key); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "transcode queued", "video_key": v.Key})
}

func (h *VideoHandler) DropboxIntake(c *gin.Context) {
	key, err := paramKey(c, "key")
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.adminCollection(c, key); err != nil {
		c.Error(err)
		return
	}
	var req DropboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request data", err))
		return
	}
	in := pipeline.RemoteIngestInput{CollectionKey: key}
	for _, f := range req.Files {
		in.Files = append(in.Files, pipeline.RemoteFile{Name: f.Name, Link: f.Link})
	}
	keys, err := h.ingestUC.IngestRemote(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"video_keys": keys})
}

func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	v, err := h.adminVideo(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.deleteUC.DeleteVideo(c.Request.Context(), v.Key); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *VideoHandler) DeleteCollection(c *gin.Context) {
	key, err := paramKey(c, "key")
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.adminCollection(c, key); err != nil {
		c.Error(err)
		return
	}
	if err := h.deleteUC.DeleteCollection(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
