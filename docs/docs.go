// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Autofill Decision & Routing Engine",
    "description": "Applies autofill decisions idempotently, routes detected intents to actions and learns from review feedback",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "tags": [
    {"name": "apply"},
    {"name": "routing"},
    {"name": "suggestions"},
    {"name": "feedback"},
    {"name": "preferences"},
    {"name": "process"}
  ],
  "paths": {}
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
