package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

var (
	apiDocMu sync.RWMutex
	apiDoc   []byte
)

// SetAPIDoc sets the OpenAPI document served at /docs/openapi.yaml.
func SetAPIDoc(doc []byte) {
	apiDocMu.Lock()
	defer apiDocMu.Unlock()
	apiDoc = doc
}

// APIDoc serves the raw OpenAPI YAML.
func APIDoc(c *gin.Context) {
	apiDocMu.RLock()
	doc := apiDoc
	apiDocMu.RUnlock()

	if doc == nil {
		c.String(http.StatusNotFound, "OpenAPI document not loaded")
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", doc)
}

const apiDocPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>OpenBazaar Orders API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

// APIDocUI serves a Swagger UI page that loads /docs/openapi.yaml.
func APIDocUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(apiDocPage))
}
