package controller

import (
	"qadam_backend/internal/service"
	"qadam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// SubmissionHeader 可替代请求体中的 submissionId
const SubmissionHeader = "X-Submission-Id"

type ResultController struct {
	Submissions *service.SubmissionService
	Results     *service.ResultService
}

func NewResultController(submissions *service.SubmissionService, results *service.ResultService) *ResultController {
	return &ResultController{Submissions: submissions, Results: results}
}

func bindSubmission(ctx *gin.Context) (*service.SubmissionRequest, bool) {
	var req service.SubmissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return nil, false
	}
	if req.SubmissionID == "" {
		req.SubmissionID = ctx.GetHeader(SubmissionHeader)
	}
	return &req, true
}

// @Summary 提交试卷
// @Description 同一 submissionId 重复提交返回已保存的成绩
// @Tags 成绩模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.SubmissionRequest true "作答"
// @Success 201 {object} util.Response{data=service.SubmissionResponse}
// @Success 200 {object} util.Response{data=service.SubmissionResponse}
// @Failure 400 {object} util.Response
// @Router /api/test-results [post]
func (c *ResultController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	req, ok := bindSubmission(ctx)
	if !ok {
		return
	}

	resp, err := c.Submissions.Submit(ctx.Request.Context(), user.UserID, *req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if resp.Duplicate {
		util.Success(ctx, resp)
		return
	}
	util.Created(ctx, resp)
}

// @Summary 访客提交试卷（仅免费试卷，不保存）
// @Tags 成绩模块
// @Accept json
// @Produce json
// @Param body body service.SubmissionRequest true "作答"
// @Success 200 {object} util.Response{data=service.GuestResult}
// @Failure 403 {object} util.Response
// @Router /api/public/test-results [post]
func (c *ResultController) SubmitGuest(ctx *gin.Context) {
	req, ok := bindSubmission(ctx)
	if !ok {
		return
	}

	res, err := c.Submissions.SubmitGuest(ctx.Request.Context(), *req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 我的成绩列表
// @Tags 成绩模块
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/test-results [get]
func (c *ResultController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := util.ParsePage(ctx.DefaultQuery("page", "1"), ctx.DefaultQuery("limit", "20"))
	results, total, err := c.Results.List(ctx.Request.Context(), user.UserID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: results, Total: total, Page: page, Limit: limit})
}

// @Summary 成绩回顾
// @Tags 成绩模块
// @Produce json
// @Security BearerAuth
// @Param id path string true "成绩ID"
// @Success 200 {object} util.Response{data=service.ReviewResponse}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/test-results/{id}/review [get]
func (c *ResultController) Review(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	rv, err := c.Results.Review(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, rv)
}
