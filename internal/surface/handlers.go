package surface

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

type modeRequest struct {
	Mode tree.Mode `json:"mode" binding:"required"`
}

type programRequest struct {
	ProgramID string `json:"program_id" binding:"required"`
}

type speedRequest struct {
	Percent *float64 `json:"percent" binding:"required"`
}

type countdownRequest struct {
	Minutes int  `json:"minutes"`
	Clear   bool `json:"clear"`
}

type timeRequest struct {
	Field schedule.TimeField `json:"field" binding:"required"`
	Value string             `json:"value" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if !s.ctl.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) getView(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.View())
}

func (s *Server) refresh(c *gin.Context) {
	view, err := s.ctl.Refresh(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if err := s.ctl.SetMode(c.Request.Context(), req.Mode); err != nil {
		writeError(c, err)
		return
	}
	s.getView(c)
}

func (s *Server) setProgram(c *gin.Context) {
	var req programRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if err := s.ctl.SelectProgram(c.Request.Context(), req.ProgramID); err != nil {
		writeError(c, err)
		return
	}
	s.getView(c)
}

func (s *Server) setSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	value, err := s.ctl.SetSpeedPercent(c.Request.Context(), *req.Percent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"program_speed": value, "view": s.ctl.View()})
}

func (s *Server) previewSpeed(c *gin.Context) {
	pct, err := strconv.ParseFloat(c.Query("percent"), 64)
	if err != nil {
		badRequest(c, "percent must be a number")
		return
	}
	value, label := s.ctl.SpeedPreview(pct)
	c.JSON(http.StatusOK, gin.H{"program_speed": value, "label": label})
}

func (s *Server) setBrightness(c *gin.Context) {
	var req tree.BrightnessUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if err := s.ctl.SetBrightness(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	s.getView(c)
}

func (s *Server) countdown(c *gin.Context) {
	var req countdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	var err error
	if req.Clear {
		err = s.ctl.ClearCountdown(c.Request.Context())
	} else {
		err = s.ctl.StartCountdown(c.Request.Context(), req.Minutes)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	s.getView(c)
}

func (s *Server) commands(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := s.ctl.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": entries})
}

func (s *Server) addBlock(c *gin.Context) {
	s.edit(c, s.ctl.AddBlock())
}

func (s *Server) removeBlock(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	s.edit(c, s.ctl.RemoveBlock(index))
}

func (s *Server) toggleBlock(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	s.edit(c, s.ctl.ToggleBlock(index))
}

func (s *Server) setBlockTime(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req timeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	s.edit(c, s.ctl.SetBlockTime(index, req.Field, req.Value))
}

func (s *Server) toggleBlockDay(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	day, ok := intParam(c, "day")
	if !ok {
		return
	}
	s.edit(c, s.ctl.ToggleBlockDay(index, day))
}

func (s *Server) saveSchedule(c *gin.Context) {
	s.edit(c, s.ctl.SaveSchedule(c.Request.Context()))
}

func (s *Server) discardSchedule(c *gin.Context) {
	s.ctl.DiscardSchedule()
	s.getView(c)
}

func (s *Server) edit(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	s.getView(c)
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}
