package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, errs.ErrNoContent):
		response.Error(c, errcode.ErrNoContent, err.Error())
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, errs.ErrDocumentDownload):
		response.Error(c, errcode.ErrDocumentDownload, err.Error())
	case errors.Is(err, errs.ErrDocumentProcessing):
		response.Error(c, errcode.ErrDocumentProcessing, err.Error())
	case errors.Is(err, errs.ErrEmbedding):
		response.Error(c, errcode.ErrEmbedding, err.Error())
	case errors.Is(err, errs.ErrVectorStore):
		response.Error(c, errcode.ErrVectorStore, err.Error())
	case errors.Is(err, errs.ErrLLM):
		response.Error(c, errcode.ErrLLM, err.Error())
	case errors.Is(err, errs.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
