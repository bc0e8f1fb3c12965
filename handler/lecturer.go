package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lecture-avatar/dto"
	"lecture-avatar/service"
)

func (h *Handler) ListLecturers(c *gin.Context) {
	lecturers, err := h.deps.Lecturers.List(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list lecturers")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to list lecturers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lecturers": lecturers})
}

func (h *Handler) DescribeLecturer(c *gin.Context) {
	name := c.Param("lecturer_name")
	profile, err := h.deps.Lecturers.Describe(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusOK, dto.LecturerDetail{
			Name:    name,
			Exists:  false,
			Message: fmt.Sprintf("Lecturer '%s' not found. Upload both portrait and voice files to create this lecturer.", name),
			Requirements: map[string]string{
				"portrait": fmt.Sprintf("Upload an image file (%s)", strings.Join(h.cfg.Limits.ImageFormats, ", ")),
				"voice":    fmt.Sprintf("Upload an audio file (%s)", strings.Join(h.cfg.Limits.AudioFormats, ", ")),
			},
		})
		return
	}

	c.JSON(http.StatusOK, dto.LecturerDetail{
		Name:           profile.Name,
		Exists:         true,
		Portrait:       profile.PortraitPath,
		VoiceReference: profile.VoicePath,
		Message:        fmt.Sprintf("Lecturer '%s' is available", profile.Name),
	})
}

func (h *Handler) CreateLecturer(c *gin.Context) {
	name := c.Param("lecturer_name")

	staging, err := os.MkdirTemp("", "lecturer-upload-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to stage uploads"})
		return
	}
	defer os.RemoveAll(staging)

	portraitSrc, ok := h.saveUpload(c, "portrait_file", "Portrait", h.cfg.Limits.ImageFormats, staging, "portrait", true)
	if !ok {
		return
	}
	voiceSrc, ok := h.saveUpload(c, "voice_file", "Voice", h.cfg.Limits.AudioFormats, staging, "voice", true)
	if !ok {
		return
	}

	profile, err := h.deps.Lecturers.Create(c.Request.Context(), name, portraitSrc, voiceSrc)
	if err != nil {
		if errors.Is(err, service.ErrLecturerExists) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{Detail: fmt.Sprintf("Lecturer '%s' already exists", name)})
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("lecturer", name).Msg("failed to create lecturer")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: "failed to create lecturer"})
		return
	}

	c.JSON(http.StatusOK, dto.LecturerCreatedResponse{
		Name:           profile.Name,
		Created:        true,
		Portrait:       profile.PortraitPath,
		VoiceReference: profile.VoicePath,
		Message:        fmt.Sprintf("Lecturer '%s' created successfully", profile.Name),
	})
}
