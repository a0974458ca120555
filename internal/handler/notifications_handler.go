package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"github.com/newsdesk/notifyd/internal/dto"
	"github.com/newsdesk/notifyd/internal/ports"
	"github.com/newsdesk/notifyd/internal/service"
)

type NotifyHandler struct {
	queueService ports.QueueServiceInterface
}

func NewNotifyHandler(queueService ports.QueueServiceInterface) *NotifyHandler {
	return &NotifyHandler{queueService: queueService}
}

func articleID(c *ginext.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func (h *NotifyHandler) QueueNotifications(c *ginext.Context) {
	id, err := articleID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid article id: %s", err.Error())})
		return
	}

	var body dto.QueueNotificationsRequest
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid body (parsing): %s", err.Error())})
		return
	}

	mode, sendAfter, err := body.ToParams()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid body (validating): %s", err.Error())})
		return
	}

	err = h.queueService.QueueNotifications(context.Background(), id, body.UserID, body.IsDraft, body.Methods, mode, sendAfter)
	if err != nil {
		if errors.Is(err, service.ErrSendAfterRequired) ||
			errors.Is(err, service.ErrInvalidSendMode) ||
			errors.Is(err, service.ErrUnknownMethod) {
			c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusConflict, ginext.H{"error": fmt.Sprintf("couldn't queue notifications: %s", err.Error())})
		return
	}
	c.Status(http.StatusCreated)
}

func (h *NotifyHandler) CancelNotifications(c *ginext.Context) {
	id, err := articleID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid article id: %s", err.Error())})
		return
	}

	methodID := c.Query("method")
	if err := h.queueService.CancelNotifications(context.Background(), id, methodID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ginext.H{"error": fmt.Sprintf("couldn't cancel notifications: %s", err.Error())})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotifyHandler) GetNotifications(c *ginext.Context) {
	id, err := articleID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid article id: %s", err.Error())})
		return
	}

	views, err := h.queueService.Notifications(context.Background(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ginext.H{"error": fmt.Sprintf("couldn't get notifications: %s", err.Error())})
		return
	}

	out := make([]dto.NotificationView, 0, len(views))
	for _, v := range views {
		out = append(out, dto.ToViewFromModel(v))
	}
	c.JSON(http.StatusOK, out)
}

func (h *NotifyHandler) GetNotificationStatus(c *ginext.Context) {
	id, err := articleID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid article id: %s", err.Error())})
		return
	}

	status, message, err := h.queueService.Status(context.Background(), id, c.Param("method"))
	if err != nil {
		if errors.Is(err, service.ErrHeaderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, ginext.H{"error": "notification not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, ginext.H{"error": fmt.Sprintf("couldn't get status: %s", err.Error())})
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: status.String(), Message: message})
}

func (h *NotifyHandler) GetNotificationData(c *ginext.Context) {
	id, err := articleID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": fmt.Sprintf("invalid article id: %s", err.Error())})
		return
	}

	data, err := h.queueService.Data(context.Background(), id, c.Param("method"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownMethod) {
			c.AbortWithStatusJSON(http.StatusNotFound, ginext.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, ginext.H{"error": fmt.Sprintf("couldn't get notification data: %s", err.Error())})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *NotifyHandler) GetPendingNotifications(c *ginext.Context) {
	pending, err := h.queueService.Pending(context.Background())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ginext.H{"error": fmt.Sprintf("couldn't get pending notifications: %s", err.Error())})
		return
	}

	out := make([]dto.PendingNotificationView, 0, len(pending))
	for _, pn := range pending {
		out = append(out, dto.ToPendingFromModel(pn))
	}
	c.JSON(http.StatusOK, out)
}
