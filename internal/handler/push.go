package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"GoalEngine/internal/model"
	"GoalEngine/internal/model/dto"
	"GoalEngine/pkg/response"
)

// RelayNextUp 服务端推送的 next-up 载荷，HTTP 入口。
// 载荷无效时同样返回 200，结果写在 outcome 里。
// POST /v1/push/next-up
func RelayNextUp(ctx context.Context, c *app.RequestContext) {
	userID, ok := requireUser(ctx, c)
	if !ok {
		return
	}

	var payload model.NextUpPayload
	if err := c.Bind(&payload); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	payload.UserID = userID

	outcome := engine.HandleNextUp(ctx, payload)
	response.Success(ctx, c, dto.NextUpResponse{Outcome: string(outcome)})
}
