package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Handler serves Swagger UI over the document at /openapi.yml.
func Handler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL("/openapi.yml"))
}
