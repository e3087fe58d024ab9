// internal/handler/family_handler.go
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
	"device-dispatch/internal/serializer"
	"device-dispatch/internal/utils"
)

// FamilyInfo describes a registered device family
type FamilyInfo struct {
	Family        model.DeviceFamily        `json:"family"`
	Description   string                    `json:"description"`
	Config        model.SerializationConfig `json:"config"`
	Commands      []model.CommandType       `json:"commands"`
	MaxPin        int                       `json:"max_pin,omitempty"`
	RelayChannels int                       `json:"relay_channels,omitempty"`
}

// FamilyHandler exposes the device family registry
type FamilyHandler struct {
	serializer *serializer.Serializer
	logger     *utils.ServiceLogger
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(s *serializer.Serializer, logger *zap.Logger) *FamilyHandler {
	return &FamilyHandler{
		serializer: s,
		logger:     utils.NewServiceLogger(logger, "family-handler"),
	}
}

// RegisterRoutes registers family routes
func (h *FamilyHandler) RegisterRoutes(router *gin.RouterGroup) {
	families := router.Group("/families")
	{
		families.GET("", h.ListFamilies)
		families.GET("/:family/config", h.GetFamilyConfig)
	}
}

// ListFamilies lists every registered family with its capabilities
func (h *FamilyHandler) ListFamilies(c *gin.Context) {
	registry := h.serializer.Registry()
	families := h.serializer.Families()

	infos := make([]FamilyInfo, 0, len(families))
	for _, family := range families {
		profile, ok := registry.Profile(family)
		if !ok {
			continue
		}
		infos = append(infos, familyInfo(profile))
	}

	utils.SuccessResponse(c, http.StatusOK, "Device families retrieved", infos)
}

// GetFamilyConfig returns the serialization config of one family
func (h *FamilyHandler) GetFamilyConfig(c *gin.Context) {
	family := model.DeviceFamily(strings.ToUpper(c.Param("family")))
	profile, ok := h.serializer.Registry().Profile(family)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown device family", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Family config retrieved", familyInfo(profile))
}

func familyInfo(profile *serializer.FamilyProfile) FamilyInfo {
	commands := make([]model.CommandType, 0, len(profile.Supported))
	for _, commandType := range model.AllCommandTypes {
		if profile.Supports(commandType) {
			commands = append(commands, commandType)
		}
	}
	return FamilyInfo{
		Family:        profile.Family,
		Description:   profile.Description,
		Config:        profile.Config,
		Commands:      commands,
		MaxPin:        profile.MaxPin,
		RelayChannels: profile.RelayChannels,
	}
}
