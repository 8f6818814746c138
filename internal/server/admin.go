package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
)

type listPaymentEventsQuery struct {
	pagination.Pagination
	OrderRef string `form:"order_ref"`
	Source   string `form:"source"`
	Pending  bool   `form:"pending"`
}

func (s *Server) ListPaymentEvents(c *gin.Context) {
	var query listPaymentEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pageSize := query.Size()
	filter := paymentdomain.ListEventsFilter{
		Source:   paymentdomain.Source(strings.TrimSpace(query.Source)),
		OrderRef: strings.TrimSpace(query.OrderRef),
		Pending:  query.Pending,
		PageSize: pageSize + 1,
	}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			AbortWithError(c, pagination.ErrInvalidPageToken)
			return
		}
		filter.AfterID = afterID
	}

	items, err := s.events.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, pageInfo, err := pagination.BuildCursorPageInfo(items, pageSize, func(e paymentdomain.EventRecord) string {
		return e.ID.String()
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      page,
		"page_info": pageInfo,
	})
}

func (s *Server) TriggerReconcile(c *gin.Context) {
	result, err := s.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
