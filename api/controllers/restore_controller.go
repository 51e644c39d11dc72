package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/imagerestore/api/models"
	"github.com/moyoez/imagerestore/notify"
	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

type RestoreController struct {
	engine *transfer.Engine
}

func NewRestoreController(engine *transfer.Engine) *RestoreController {
	return &RestoreController{
		engine: engine,
	}
}

func (ctrl *RestoreController) sinkFor(sessionId string) notify.Sink {
	var b notify.Broadcaster
	if hub := models.GetNotifyHub(); hub != nil {
		b = hub
	}
	return notify.SinksFor(sessionId, *tool.GetCurrentConfig(), b)
}

// preflightStatus maps a pre-flight failure to an HTTP status.
func preflightStatus(err error) int {
	switch {
	case errors.Is(err, transfer.ErrSourceOpen), errors.Is(err, transfer.ErrTargetOpen):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrEmptyImage), errors.Is(err, transfer.ErrImageTooLarge):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// HandleStart validates sizes and starts a restore in the background.
func (ctrl *RestoreController) HandleStart(c *gin.Context) {
	var req types.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		tool.DefaultLogger.Errorf("[Restore] invalid start request: %v", err)
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	r := transfer.Request{Source: req.Source, Target: req.Target}

	if busyId, ok := models.ClaimTarget(r.Target); !ok {
		c.JSON(http.StatusConflict, tool.FastReturnSessionError("Target is busy", busyId))
		return
	}

	verdict, err := ctrl.engine.PreflightLocators(r)
	if err != nil {
		models.ReleaseTarget(r.Target)
		tool.DefaultLogger.Warnf("[Restore] pre-flight rejected %s -> %s: %v", r.Source, r.Target, err)
		c.JSON(preflightStatus(err), tool.FastReturnError(err.Error()))
		return
	}
	if verdict.Warning != "" && !req.Force {
		models.ReleaseTarget(r.Target)
		c.JSON(http.StatusConflict, tool.FastReturnErrorWithData(verdict.Warning, map[string]any{
			"warning":     true,
			"sourceBytes": verdict.SourceBytes,
			"targetBytes": verdict.TargetBytes,
		}))
		return
	}

	session := transfer.NewSession(r)
	if cfg := tool.GetCurrentConfig(); cfg.Notify {
		if err := notify.SendRestoreStartNotification(cfg.NotifySocket, session.Id, r.Source, r.Target); err != nil {
			tool.DefaultLogger.Debugf("[Notify] start notification: %v", err)
		}
	}
	reporter := notify.NewReporter(ctrl.sinkFor(session.Id))
	h := transfer.StartSession(ctrl.engine, session, nil, reporter)
	models.TrackSession(r.Target, h)

	tool.DefaultLogger.Infof("[Restore] started session %s", h.Id())
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(types.RestoreStartResponse{
		SessionId: h.Id(),
		Warning:   verdict.Warning,
	}))
}

// HandleCancel cancels a running session.
func (ctrl *RestoreController) HandleCancel(c *gin.Context) {
	sessionId := c.Query("sessionId")
	if sessionId == "" {
		tool.DefaultLogger.Errorf("Missing required parameter: sessionId")
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing parameters"))
		return
	}

	tool.DefaultLogger.Infof("[Cancel] Received cancel request: sessionId=%s", sessionId)
	h, ok := models.GetActiveSession(sessionId)
	if !ok {
		if _, finished := models.LookupSession(sessionId); finished {
			c.JSON(http.StatusConflict, tool.FastReturnSessionError("Session already finished", sessionId))
			return
		}
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	select {
	case <-h.Done():
		// finished, not yet moved to the cache
		c.JSON(http.StatusConflict, tool.FastReturnSessionError("Session already finished", sessionId))
		return
	default:
	}
	h.Cancel()
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleStatus returns one session, or all known sessions without sessionId.
func (ctrl *RestoreController) HandleStatus(c *gin.Context) {
	sessionId := c.Query("sessionId")
	if sessionId == "" {
		c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(models.ListSessions()))
		return
	}
	snap, ok := models.LookupSession(sessionId)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snap))
}

// HandlePreflight reports whether source fits target without starting anything.
func (ctrl *RestoreController) HandlePreflight(c *gin.Context) {
	source, target := c.Query("source"), c.Query("target")
	if source == "" || target == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing parameters"))
		return
	}
	verdict, err := ctrl.engine.PreflightLocators(transfer.Request{Source: source, Target: target})
	resp := types.PreflightResponse{
		SourceBytes: verdict.SourceBytes,
		TargetBytes: verdict.TargetBytes,
		Ok:          err == nil,
		Warning:     verdict.Warning,
	}
	if err != nil {
		resp.Error = err.Error()
		if status := preflightStatus(err); status != http.StatusUnprocessableEntity {
			c.JSON(status, tool.FastReturnError(resp.Error))
			return
		}
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(resp))
}

// HandleConfig returns the effective configuration.
func HandleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(tool.ConfigResponseFrom(*tool.GetCurrentConfig())))
}
