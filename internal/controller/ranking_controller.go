package controller

import (
	"strconv"

	"qadam_backend/internal/service"
	"qadam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RankingController struct {
	Service *service.RankingService
}

func NewRankingController(svc *service.RankingService) *RankingController {
	return &RankingController{Service: svc}
}

// @Summary 排行榜
// @Tags 排名模块
// @Produce json
// @Param limit query int false "数量" default(10)
// @Success 200 {object} util.Response{data=[]service.LeaderboardRow}
// @Router /api/rankings [get]
func (c *RankingController) Top(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	rows, err := c.Service.Top(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}

// @Summary 我的排名统计
// @Tags 排名模块
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.UserRanking}
// @Router /api/rankings/me [get]
func (c *RankingController) Mine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	ranking, err := c.Service.Mine(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, ranking)
}
