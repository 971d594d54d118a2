package handler

import (
	"context"
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/journal"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// EventHistory 已持久化的账本事件，由 repository.EventRepository 实现
type EventHistory interface {
	FindByProject(ctx context.Context, projectId common.Hash, afterSequence uint64, limit int) ([]model.LedgerEvent, error)
}

type ProjectHandler struct {
	manager *logic.Manager
	journal *journal.Journal
	history EventHistory // 为 nil 时只返回内存中最近的事件
}

func NewProjectHandler(manager *logic.Manager, j *journal.Journal, history EventHistory) *ProjectHandler {
	return &ProjectHandler{manager: manager, journal: j, history: history}
}

// RegisterProject 注册项目
func (h *ProjectHandler) RegisterProject(c *gin.Context) {
	caller, err := callerOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	threshold, err := parseAmount(req.Threshold)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	seed, err := parseAmount(req.Seed)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient, errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.manager.RegisterProject(c.Request.Context(), caller, logic.ProjectRequest{
		Threshold:   threshold,
		Seed:        seed,
		Description: req.Description,
		Metadata:    req.Metadata,
		Recipient:   recipient,
	})
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}

	project, err := h.manager.GetProject(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "项目创建成功", ToProjectResponse(project))
}

// GetProjects 按注册顺序获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	projects := h.manager.GetProjects()
	out := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		out[i] = ToProjectResponse(p)
	}
	SuccessResponse(c, http.StatusOK, "获取项目列表成功", out)
}

// GetProject 获取项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.manager.GetProject(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取项目详情成功", ToProjectResponse(project))
}

// GetProjectStrategy 获取项目绑定的策略实例
func (h *ProjectHandler) GetProjectStrategy(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := h.manager.GetProjectStrategy(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取策略实例成功", ToStrategyResponse(strategy))
}

// GetRecipient 获取项目受益人
func (h *ProjectHandler) GetRecipient(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	recipient, err := h.manager.GetRecipient(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取受益人成功", gin.H{"recipient": recipient.Hex()})
}

// GetProjectEvents 按序号分页获取项目的账本事件
func (h *ProjectHandler) GetProjectEvents(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	after, limit, err := eventPageOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.manager.GetProject(id); err != nil {
		LedgerErrorResponse(c, err)
		return
	}

	var events []model.LedgerEvent
	if h.history != nil {
		stored, err := h.history.FindByProject(c.Request.Context(), id, after, limit)
		if err != nil {
			logger.Warn("Event history for project %s unavailable, serving journal: %v", id.Hex(), err)
		} else {
			events = stored
			if len(stored) > 0 {
				after = stored[len(stored)-1].Sequence
			}
		}
	}

	// 尚未落库的事件从发件箱补齐
	if len(events) < limit {
		recent := h.journal.Recent(func(e model.LedgerEvent) bool {
			return e.ProjectId == id && e.Sequence > after
		})
		if n := limit - len(events); len(recent) > n {
			recent = recent[:n]
		}
		events = append(events, recent...)
	}

	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = ToEventResponse(e)
	}
	SuccessResponse(c, http.StatusOK, "获取项目事件成功", out)
}
