package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

// PipelineService is the surface handlers need from the QA pipeline.
type PipelineService interface {
	Run(ctx context.Context, documents []string, questions []string) (*service.Result, error)
	RunDetailed(ctx context.Context, documents []string, questions []string) (*service.DetailedResult, error)
	Stats(ctx context.Context) (vectorindex.Stats, error)
	ClearIndex(ctx context.Context) error
}

type PipelineHandler struct {
	pipeline PipelineService
	tempDir  string
}

func NewPipelineHandler(pipeline PipelineService, tempDir string) *PipelineHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &PipelineHandler{pipeline: pipeline, tempDir: tempDir}
}

type runRequest struct {
	Documents []string `json:"documents"`
	Questions []string `json:"questions"`
}

// Run accepts documents either as multipart uploads with a "questions"
// form field, or as a JSON body of document URLs and questions.
func (h *PipelineHandler) Run(c *gin.Context) {
	documents, questions, cleanup, err := h.parseRunRequest(c)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, err.Error())
		return
	}
	defer cleanup()

	res, err := h.pipeline.Run(c.Request.Context(), documents, questions)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *PipelineHandler) RunDetailed(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Documents) == 0 || len(req.Questions) == 0 {
		response.Error(c, errcode.ErrInvalid, "documents and questions are required")
		return
	}
	res, err := h.pipeline.RunDetailed(c.Request.Context(), req.Documents, req.Questions)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *PipelineHandler) Stats(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *PipelineHandler) ClearIndex(c *gin.Context) {
	if err := h.pipeline.ClearIndex(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"cleared": true})
}

func (h *PipelineHandler) Healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *PipelineHandler) parseRunRequest(c *gin.Context) ([]string, []string, func(), error) {
	noop := func() {}
	contentType := c.GetHeader("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, noop, fmt.Errorf("invalid request")
		}
		if len(req.Documents) == 0 || len(req.Questions) == 0 {
			return nil, nil, noop, fmt.Errorf("documents and questions are required")
		}
		return req.Documents, req.Questions, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, noop, fmt.Errorf("invalid multipart form")
	}
	var questions []string
	if raw := c.PostForm("questions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &questions); err != nil {
			return nil, nil, noop, fmt.Errorf("questions must be a json array of strings")
		}
	}
	files := form.File["documents"]
	if len(files) == 0 || len(questions) == 0 {
		return nil, nil, noop, fmt.Errorf("documents and questions are required")
	}

	var saved []string
	cleanup := func() {
		for _, path := range saved {
			_ = os.Remove(path)
		}
	}
	for _, file := range files {
		path, err := h.saveUpload(file)
		if err != nil {
			cleanup()
			return nil, nil, noop, fmt.Errorf("save upload %s: %s", file.Filename, err.Error())
		}
		saved = append(saved, path)
	}
	return saved, questions, cleanup, nil
}

func (h *PipelineHandler) saveUpload(file *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(file.Filename)
	tmp, err := os.CreateTemp(h.tempDir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	src, err := file.Open()
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	defer dst.Close()
	if _, err := dst.ReadFrom(src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
