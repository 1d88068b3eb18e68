package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"GoalEngine/internal/model/dto"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/response"
)

// ResumeSession 会话恢复时对齐提醒
// POST /v1/session/resume
func ResumeSession(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	if err := engine.Resume(ctx, userID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// Logout POST /v1/session/logout
func Logout(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}
	engine.Logout(ctx, userID)
	response.NoContent(ctx, c)
}

// SetPermission 系统通知权限变化
// PUT /v1/notifications/permission
func SetPermission(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}

	var req dto.PermissionRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Granted == nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := engine.SetNotificationPermission(ctx, userID, *req.Granted); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}

// ScheduleReengagement POST /v1/notifications/reengagement
func ScheduleReengagement(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}

	var req dto.ReengagementRequest
	if len(c.Request.Body()) > 0 {
		if err := c.Bind(&req); err != nil {
			response.BindError(ctx, c, err)
			return
		}
	}

	engine.ScheduleReengagement(ctx, userID, req.DelayHours)
	response.Accepted(ctx, c, nil)
}
