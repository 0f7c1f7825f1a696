//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// docTemplate is a minimal OpenAPI document; `make swagger-gen` replaces it
// with the one generated from the handler annotations.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"summary": "Engine health", "responses": {"200": {"description": "OK"}}}},
        "/trainings": {"get": {"summary": "All training sessions", "responses": {"200": {"description": "OK"}}}},
        "/bots": {
            "get": {"summary": "Mounted bots", "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Mount a bot", "responses": {"201": {"description": "Created"}, "409": {"description": "Already mounted"}}}
        },
        "/bots/{botID}": {
            "delete": {"summary": "Unmount a bot", "responses": {"204": {"description": "No Content"}, "404": {"description": "Not mounted"}}}
        },
        "/bots/{botID}/trainings/{lang}": {
            "get": {"summary": "Training session of a language", "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Queue training", "responses": {"202": {"description": "Accepted"}}},
            "delete": {"summary": "Cancel training", "responses": {"204": {"description": "No Content"}}}
        },
        "/bots/{botID}/predict": {
            "post": {"summary": "Understand a sentence", "responses": {"200": {"description": "OK"}, "409": {"description": "Model not loaded"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "nlud API",
	Description:      "HTTP API for NLU bot mounting, training and prediction.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
