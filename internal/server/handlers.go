package server

import (
	"context"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/craftvisor/internal/config"
	"github.com/loykin/craftvisor/internal/metrics"
	"github.com/loykin/craftvisor/internal/properties"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type commandReq struct {
	Command string `json:"command"`
}

type nameReq struct {
	Name string `json:"name"`
}

type installReq struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type memoryReq struct {
	MemoryAllocation string `json:"memoryAllocation"`
}

type logsResp struct {
	Lines []string `json:"lines"`
}

type killResp struct {
	Killed bool `json:"killed"`
}

type addResp struct {
	Added bool `json:"added"`
}

type installResp struct {
	Filename string `json:"filename"`
}

type resourcesResp struct {
	Latest  *metrics.Sample  `json:"latest"`
	History []metrics.Sample `json:"history"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.cfg.Supervisor.Status())
}

func (r *Router) handleStart(c *gin.Context) {
	// the launched process must outlive this request
	if err := r.cfg.Supervisor.Start(context.WithoutCancel(c.Request.Context())); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.cfg.Supervisor.Status())
}

func (r *Router) handleStop(c *gin.Context) {
	res, err := r.cfg.Supervisor.Stop(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.cfg.Supervisor.Restart(context.WithoutCancel(c.Request.Context())); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.cfg.Supervisor.Status())
}

func (r *Router) handleKill(c *gin.Context) {
	writeJSON(c, http.StatusOK, killResp{Killed: r.cfg.Supervisor.Kill()})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		badRequest(c, "command required")
		return
	}
	if err := r.cfg.Supervisor.SendCommand(req.Command); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogs(c *gin.Context) {
	lines := r.cfg.Supervisor.Logs()
	if s := c.Query("tail"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "tail must be a non-negative integer")
			return
		}
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(c, http.StatusOK, logsResp{Lines: lines})
}

func (r *Router) handleWhitelistList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.cfg.Whitelist.Read())
}

func (r *Router) handleWhitelistAdd(c *gin.Context) {
	var req nameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	added, err := r.cfg.Whitelist.Add(req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, addResp{Added: added})
}

func (r *Router) handleWhitelistRemove(c *gin.Context) {
	if err := r.cfg.Whitelist.Remove(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePropertiesGet(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.cfg.Properties.Read().ToMap())
}

// handlePropertiesPut replaces the file with the given pairs. Keys already in
// the file keep their position; new keys follow in sorted order.
func (r *Router) handlePropertiesPut(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	for k, v := range body {
		if err := properties.CheckEntry(k, v); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	next := properties.NewMap()
	for _, k := range r.cfg.Properties.Read().Keys() {
		if v, ok := body[k]; ok {
			next.Set(k, v)
			delete(body, k)
		}
	}
	rest := make([]string, 0, len(body))
	for k := range body {
		rest = append(rest, k)
	}
	slices.Sort(rest)
	for _, k := range rest {
		next.Set(k, body[k])
	}
	if err := r.cfg.Properties.Write(next); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, next.ToMap())
}

func (r *Router) handleInstall(c *gin.Context) {
	var req installReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	path, err := r.cfg.Installer.Install(c.Request.Context(), req.URL, req.Filename)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, installResp{Filename: filepath.Base(path)})
}

func (r *Router) handleMemory(c *gin.Context) {
	var req memoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if err := config.SaveMemory(r.cfg.SettingsPath, req.MemoryAllocation); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, memoryReq{MemoryAllocation: strings.TrimSpace(req.MemoryAllocation)})
}

func (r *Router) handleResources(c *gin.Context) {
	resp := resourcesResp{History: r.cfg.Resources.History()}
	if s, ok := r.cfg.Resources.Latest(); ok {
		resp.Latest = &s
	}
	if resp.History == nil {
		resp.History = []metrics.Sample{}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	evs, err := r.cfg.History.Recent(c.Request.Context(), limit)
	if err != nil {
		r.log.Warn("history query failed", "error", err)
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, evs)
}
