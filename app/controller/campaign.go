package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/mapper"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

const sseKeepAlive = 15 * time.Second

type CampaignController struct {
	campaignService *service.CampaignService
	broadcaster     *campaign.Broadcaster
	logger          logrus.FieldLogger
}

func NewCampaignController(campaignService *service.CampaignService, broadcaster *campaign.Broadcaster) *CampaignController {
	return &CampaignController{
		campaignService: campaignService,
		broadcaster:     broadcaster,
		logger:          factory.NewModuleLogger("campaign-controller"),
	}
}

func (c *CampaignController) Start(ctx echo.Context) error {
	req, err := types.NewStartCampaignRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	in, err := mapper.StartCampaignInputFromRequest(req)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	started, err := c.campaignService.Start(ctx.Request().Context(), in)
	if err != nil {
		return c.handleError(ctx, err, "Start campaign failed")
	}
	return ctx.JSON(http.StatusAccepted, mapper.CampaignStartedToResponse(started))
}

func (c *CampaignController) Pause(ctx echo.Context) error {
	return c.transition(ctx, c.campaignService.Pause, "Pause campaign failed")
}

func (c *CampaignController) Resume(ctx echo.Context) error {
	return c.transition(ctx, c.campaignService.Resume, "Resume campaign failed")
}

func (c *CampaignController) Cancel(ctx echo.Context) error {
	return c.transition(ctx, c.campaignService.Cancel, "Cancel campaign failed")
}

func (c *CampaignController) Progress(ctx echo.Context) error {
	return c.transition(ctx, c.campaignService.Progress, "Get campaign progress failed")
}

func (c *CampaignController) ETA(ctx echo.Context) error {
	req, err := types.NewCampaignETARequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	eta, err := c.campaignService.ETA(req.TotalLeads, req.RateLimitPerSecond, req.BatchSize)
	if err != nil {
		return c.handleError(ctx, err, "Estimate campaign failed")
	}
	return ctx.JSON(http.StatusOK, &types.CampaignETAResponse{
		TotalLeads:               req.TotalLeads,
		EstimatedDurationSeconds: int64(eta / time.Second),
		EstimatedDuration:        eta.String(),
	})
}

// Events streams progress snapshots as server-sent events until the
// campaign reaches a terminal state or the client disconnects.
func (c *CampaignController) Events(ctx echo.Context) error {
	req := types.NewCampaignIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if _, err := c.campaignService.Progress(ctx.Request().Context(), req.CampaignID); err != nil {
		return c.handleError(ctx, err, "Get campaign progress failed")
	}

	reqCtx := ctx.Request().Context()
	updates, unsubscribe := c.broadcaster.Subscribe(reqCtx, req.CampaignID)
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case snapshot, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(mapper.SnapshotToResponse(&snapshot))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "event: progress\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
			if snapshot.IsTerminal() {
				return nil
			}
		}
	}
}

func (c *CampaignController) transition(
	ctx echo.Context,
	action func(ctx context.Context, campaignID string) (*campaign.Snapshot, error),
	failure string,
) error {
	req := types.NewCampaignIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	snapshot, err := action(ctx.Request().Context(), req.CampaignID)
	if err != nil {
		return c.handleError(ctx, err, failure)
	}
	return ctx.JSON(http.StatusOK, &types.CampaignProgressResponse{Progress: mapper.SnapshotToResponse(snapshot)})
}

func (c *CampaignController) handleError(ctx echo.Context, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCampaignNotFound):
		return writeError(ctx, http.StatusNotFound, "campaign not found")
	case errors.Is(err, service.ErrInvalidCampaignState):
		return writeError(ctx, http.StatusConflict, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(action)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}
