package server

import "github.com/gin-gonic/gin"

func (s *Server) HandleOrderLive(c *gin.Context) {
	if err := s.live.Serve(c.Writer, c.Request, c.Param("order_ref")); err != nil {
		AbortWithError(c, err)
	}
}
