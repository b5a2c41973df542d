// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/companies/analyse": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Publishes one message per company on the analyse subject",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["companies"],
                "summary": "Request analyser sessions",
                "parameters": [
                    {
                        "description": "Companies",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.CompanyIDsRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.BaseResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/companies/check": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Publishes one message per company on the check subject",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["companies"],
                "summary": "Request checker sessions",
                "parameters": [
                    {
                        "description": "Companies",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.CompanyIDsRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.BaseResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/companies/{companyID}/session": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["companies"],
                "summary": "Crawl session state",
                "parameters": [
                    {"type": "integer", "description": "Company ID", "name": "companyID", "in": "path", "required": true},
                    {"enum": ["analyser", "checker"], "type": "string", "description": "analyser or checker", "name": "mode", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BaseResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/companies/{companyID}/jobs": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["companies"],
                "summary": "Jobs of a company",
                "parameters": [
                    {"type": "integer", "description": "Company ID", "name": "companyID", "in": "path", "required": true},
                    {"type": "boolean", "description": "Include jobs no longer existing", "name": "all", "in": "query"},
                    {"type": "integer", "description": "Page, from 1", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Jobs per page", "name": "per_page", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BasePaginationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/health/database": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Postgres, Redis and NATS health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BaseResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.BaseResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.CompanyIDsRequest": {
            "type": "object",
            "required": ["company_ids"],
            "properties": {
                "company_ids": {"type": "array", "items": {"type": "integer"}, "example": [1, 2, 3]}
            }
        },
        "models.BaseResponse": {
            "type": "object",
            "properties": {"data": {}}
        },
        "models.BasePaginationResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "meta": {"$ref": "#/definitions/models.MetaResponse"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "models.MetaResponse": {
            "type": "object",
            "properties": {
                "current_page": {"type": "integer"},
                "last_page": {"type": "integer"},
                "per_page": {"type": "integer"},
                "total": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-KEY", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Career Crawler Service API",
	Description:      "Queues company crawl sessions and exposes their state and the jobs they found.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
