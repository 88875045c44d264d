package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Acoustic Workbench API",
        "description": "Filterable access to bioacoustic recordings and the harvest workflow for uploaded audio.",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Filter", "description": "Filter, sort, page and project catalogue resources"},
        {"name": "Harvests", "description": "Import uploaded audio as recordings"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Operations"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "Exposition format"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Operations"],
                "summary": "Metrics snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/{resource}": {
            "get": {
                "tags": ["Filter"],
                "summary": "List a resource using query string parameters",
                "parameters": [
                    {"name": "resource", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "items", "in": "query", "type": "integer"},
                    {"name": "disable_paging", "in": "query", "type": "boolean"},
                    {"name": "direction", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "order_by", "in": "query", "type": "string"},
                    {"name": "filter_partial_match", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown resource", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/{resource}/filter": {
            "post": {
                "tags": ["Filter"],
                "summary": "Filter a resource with a JSON body",
                "parameters": [
                    {"name": "resource", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/FilterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown resource", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests": {
            "post": {
                "tags": ["Harvests"],
                "summary": "Create a harvest",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateHarvestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}": {
            "get": {
                "tags": ["Harvests"],
                "summary": "Get a harvest",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/scan": {
            "post": {
                "tags": ["Harvests"],
                "summary": "Scan the upload directory into harvest items",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Scan report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Harvest already complete", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/harvest": {
            "post": {
                "tags": ["Harvests"],
                "summary": "Queue pending items for import",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/items": {
            "get": {
                "tags": ["Harvests"],
                "summary": "List the items of a harvest",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "items", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/items/{itemId}/retry": {
            "post": {
                "tags": ["Harvests"],
                "summary": "Reset a failed item and queue it again",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "itemId", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Item already completed or queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/mappings": {
            "put": {
                "tags": ["Harvests"],
                "summary": "Replace the directory mappings of a harvest",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateMappingsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/harvests/{id}/summary": {
            "get": {
                "tags": ["Harvests"],
                "summary": "Count harvest items by status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "FilterRequest": {
            "type": "object",
            "properties": {
                "filter": {"type": "object"},
                "projection": {
                    "type": "object",
                    "properties": {
                        "include": {"type": "array", "items": {"type": "string"}},
                        "exclude": {"type": "array", "items": {"type": "string"}}
                    }
                },
                "sorting": {
                    "type": "object",
                    "properties": {
                        "order_by": {"type": "string"},
                        "direction": {"type": "string", "enum": ["asc", "desc"]}
                    }
                },
                "paging": {
                    "type": "object",
                    "properties": {
                        "page": {"type": "integer"},
                        "items": {"type": "integer"},
                        "disable_paging": {"type": "boolean"}
                    }
                }
            }
        },
        "HarvestMapping": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "site_id": {"type": "integer"},
                "utc_offset": {"type": "string", "example": "+10:00"},
                "recursive": {"type": "boolean"}
            }
        },
        "CreateHarvestRequest": {
            "type": "object",
            "required": ["project_id", "creator_id"],
            "properties": {
                "project_id": {"type": "integer"},
                "creator_id": {"type": "integer"},
                "upload_path": {"type": "string"},
                "mappings": {"type": "array", "items": {"$ref": "#/definitions/HarvestMapping"}}
            }
        },
        "UpdateMappingsRequest": {
            "type": "object",
            "properties": {
                "mappings": {"type": "array", "items": {"$ref": "#/definitions/HarvestMapping"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "max_page": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
