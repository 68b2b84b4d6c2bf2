package controller

import (
	"qadam_backend/internal/service"
	"qadam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Tests    *service.TestService
	Attempts *service.AttemptService
}

func NewExamController(tests *service.TestService, attempts *service.AttemptService) *ExamController {
	return &ExamController{Tests: tests, Attempts: attempts}
}

// @Summary 获取试卷（答题用，不含正确答案）
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response{data=service.TestPayload}
// @Router /api/variants/{id}/test [get]
func (c *ExamController) GetTest(ctx *gin.Context) {
	payload, err := c.Tests.Payload(ctx.Request.Context(), ctx.Param("id"), false)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, payload)
}

// @Summary 访客获取免费试卷
// @Description 携带有效令牌时不限制免费试卷
// @Tags 考试模块
// @Produce json
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response{data=service.TestPayload}
// @Failure 403 {object} util.Response
// @Router /api/public/variants/{id}/test [get]
func (c *ExamController) GetPublicTest(ctx *gin.Context) {
	guest := util.GetUserFromContext(ctx) == nil
	payload, err := c.Tests.Payload(ctx.Request.Context(), ctx.Param("id"), guest)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, payload)
}

// @Summary 加载或创建答题草稿
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/variants/{id}/session [get]
func (c *ExamController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Attempts.LoadOrCreate(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 自动保存答题进度
// @Description seq 不大于服务端已保存值的请求会被忽略（applied=false）
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "试卷ID"
// @Param body body service.SaveProgressRequest true "答题快照"
// @Success 200 {object} util.Response{data=service.SaveProgressResult}
// @Failure 409 {object} util.Response
// @Router /api/variants/{id}/session [put]
func (c *ExamController) SaveSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SaveProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Attempts.Save(ctx.Request.Context(), user.UserID, ctx.Param("id"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 放弃答题草稿
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/variants/{id}/session/abandon [post]
func (c *ExamController) AbandonSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.Attempts.Abandon(ctx.Request.Context(), user.UserID, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"status": "abandoned"})
}
