package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the content API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>siteadmin content - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the content API.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "siteadmin-content", "version": "v0.1.0" },
  "paths": {
    "/api/pages": { "get": { "summary": "List pages from the database and page files", "responses": { "200": { "description": "page summaries" }, "503": { "description": "no store reachable" } } } },
    "/api/pages/stats": { "get": { "summary": "Page counts by publication state", "responses": { "200": { "description": "stats" } } } },
    "/api/pages/{pageId}": {
      "get": { "summary": "Resolve page content (database, then file; cached)", "responses": { "200": { "description": "content" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Merge a partial update into the page", "requestBody": { "content": { "application/json": { "schema": {"type":"object"}}}}, "responses": { "200": { "description": "written" }, "400": { "description": "validation failed" }, "500": { "description": "both stores failed" } } }
    },
    "/api/site/pages/{pageId}": {
      "get": { "summary": "Published page content", "responses": { "200": { "description": "content" }, "404": { "description": "not found" } } },
      "put": { "summary": "Write page content (database decides success)", "responses": { "200": { "description": "written" } } }
    },
    "/api/sync/files-to-database": { "post": { "summary": "Upsert every page file into the database", "responses": { "200": { "description": "report" }, "207": { "description": "report with failures" } } } },
    "/api/sync/database-to-files": { "post": { "summary": "Rewrite page files from the database", "responses": { "200": { "description": "report" }, "207": { "description": "report with failures" } } } },
    "/api/sync/runs": { "get": { "summary": "Recent sync runs, newest first", "parameters": [ { "name": "limit", "in": "query", "type": "integer" } ], "responses": { "200": { "description": "runs" }, "400": { "description": "bad limit" } } } },
    "/api/sync/consistency": { "get": { "summary": "Compare both stores", "responses": { "200": { "description": "consistency report" } } } },
    "/api/content-data": {
      "get": { "summary": "Reference data", "responses": { "200": { "description": "data" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Merge reference data and fan out job openings", "responses": { "200": { "description": "written" } } }
    },
    "/api/content-data/job-openings/sync": { "post": { "summary": "Upsert job openings by id", "responses": { "200": { "description": "report" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
