package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/siteadmin/content-services/internal/contentdata"
	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/page/resolver"
	"github.com/siteadmin/content-services/internal/runlog"
	"github.com/siteadmin/content-services/internal/validation"
)

// Deps are the services behind the content API.
type Deps struct {
	Pages     *resolver.Service // hybrid policy, admin reads and writes
	Site      *resolver.Service // published policy, public site
	Sync      *contentsync.Service
	Data      *contentdata.Service
	Validator *validation.Validator
	Runs      runlog.Store // optional
}

func RegisterPageRoutes(r gin.IRouter, d Deps) {
	api := r.Group("/api")

	api.GET("/pages", func(c *gin.Context) {
		list, err := d.Pages.GetAllPages(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	api.GET("/pages/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Pages.GetPageStats(c.Request.Context()))
	})

	api.GET("/pages/:pageId", func(c *gin.Context) {
		id, ok := pageID(c, d.Validator)
		if !ok {
			return
		}
		doc, src, err := d.Pages.GetPageContentCached(c.Request.Context(), id)
		writeContent(c, id, doc, src, err)
	})

	api.PATCH("/pages/:pageId", func(c *gin.Context) {
		update(c, d, d.Pages)
	})

	api.GET("/site/pages/:pageId", func(c *gin.Context) {
		id, ok := pageID(c, d.Validator)
		if !ok {
			return
		}
		doc, src, err := d.Site.GetPageContent(c.Request.Context(), id)
		writeContent(c, id, doc, src, err)
	})

	api.PUT("/site/pages/:pageId", func(c *gin.Context) {
		update(c, d, d.Site)
	})

	api.POST("/sync/files-to-database", func(c *gin.Context) {
		rep, _, err := runlog.Record(c.Request.Context(), d.Runs, "filesToDatabase", d.Sync.SyncAllFilesToDatabase)
		writeReport(c, rep, err)
	})

	api.POST("/sync/database-to-files", func(c *gin.Context) {
		rep, _, err := runlog.Record(c.Request.Context(), d.Runs, "databaseToFiles", d.Sync.SyncDatabaseToFiles)
		writeReport(c, rep, err)
	})

	api.GET("/sync/runs", func(c *gin.Context) {
		if d.Runs == nil {
			c.JSON(http.StatusOK, []*runlog.Run{})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		runs, err := d.Runs.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	api.GET("/sync/consistency", func(c *gin.Context) {
		rep, err := d.Sync.ValidateConsistency(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rep)
	})

	api.GET("/content-data", func(c *gin.Context) {
		doc, src, err := d.Data.GetContentData(c.Request.Context())
		if errors.Is(err, contentdata.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": src, "data": doc})
	})

	api.PATCH("/content-data", func(c *gin.Context) {
		body, ok := bindDocument(c)
		if !ok {
			return
		}
		if res := d.Validator.ValidateContentData(body); !res.Valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": res.Errors})
			return
		}
		res, err := d.Data.UpdateContentData(c.Request.Context(), body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	api.POST("/content-data/job-openings/sync", func(c *gin.Context) {
		var req struct {
			JobOpenings []interface{} `json:"jobOpenings"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rep := d.Data.SyncJobOpeningsToDatabase(c.Request.Context(), contentdata.OpeningsFrom(req.JobOpenings))
		c.JSON(http.StatusOK, rep)
	})
}

// pageID reads and checks the :pageId parameter, answering 400 itself when
// the id is unusable.
func pageID(c *gin.Context, v *validation.Validator) (string, bool) {
	id := c.Param("pageId")
	if res := v.Validate(map[string]interface{}{page.KeyPageID: id}); !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page id", "details": res.Errors})
		return "", false
	}
	return id, true
}

func bindDocument(c *gin.Context) (page.Content, bool) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return nil, false
	}
	return page.Content(body), true
}

func update(c *gin.Context, d Deps, svc *resolver.Service) {
	id, ok := pageID(c, d.Validator)
	if !ok {
		return
	}
	body, ok := bindDocument(c)
	if !ok {
		return
	}
	if res := d.Validator.Validate(body); !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": res.Errors})
		return
	}
	out, err := svc.UpdatePageContent(c.Request.Context(), id, body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": out})
}

func writeContent(c *gin.Context, id string, doc page.Content, src string, err error) {
	if errors.Is(err, resolver.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "pageId": id})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pageId": id, "source": src, "content": doc})
}

func writeReport(c *gin.Context, rep *contentsync.Report, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, rep)
}
