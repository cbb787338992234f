package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"llamarag/app/agent"
	"llamarag/loader"
	"llamarag/types"
)

type FileHandler struct {
	agent     *agent.Agent
	uploadDir string
	logger    *zap.Logger
}

func NewFileHandler(a *agent.Agent, uploadDir string, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{
		agent:     a,
		uploadDir: uploadDir,
		logger:    logger.Named("upload"),
	}
}

// HandleUpload saves the multipart "file" into the upload dir and ingests it.
// PDFs are converted to a .txt sibling first.
func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	name := filepath.Base(fileHeader.Filename)
	if name == "." || name == string(filepath.Separator) || !loader.IsSupported(name) {
		return ErrOnlyText()
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveFile(fileHeader, path); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	h.logger.Info("file saved", zap.String("path", path), zap.Int64("size", fileHeader.Size))

	textPath := path
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		var pages int
		if textPath, pages, err = loader.PDFToText(path); err != nil {
			return err
		}
		h.logger.Info("pdf converted", zap.String("path", textPath), zap.Int("pages", pages))
	}

	n, err := h.agent.ProcessAndStore(c.UserContext(), textPath)
	if err != nil {
		return err
	}

	return c.JSON(types.UploadResponse{
		Status:   "success",
		Filename: fileHeader.Filename,
		Chunks:   n,
	})
}
