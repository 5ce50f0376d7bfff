// Package docs serves the OpenAPI description of the livesync REST surface.
// It mirrors the swag annotations in internal/handlers; regenerate with
// `swag init -g internal/handlers/server.go` after changing them.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/v1/nodes/{nodeId}/containers": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["containers"],
                "summary": "Publish container state",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "nodeId", "in": "path", "required": true},
                    {"description": "Containers of one prefix", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ContainerListRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PublishResponse"}}
                }
            }
        },
        "/v1/nodes/{nodeId}/containers/{prefix}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["containers"],
                "summary": "List known containers",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "nodeId", "in": "path", "required": true},
                    {"type": "string", "description": "Deployment prefix", "name": "prefix", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Container"}}}
                }
            }
        },
        "/v1/nodes/{nodeId}/containers/{prefix}/{name}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["containers"],
                "summary": "Remove a container",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "nodeId", "in": "path", "required": true},
                    {"type": "string", "description": "Deployment prefix", "name": "prefix", "in": "path", "required": true},
                    {"type": "string", "description": "Container name within the prefix", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PublishResponse"}}
                }
            }
        },
        "/v1/resources": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "List resources",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Resource"}}}
                }
            }
        },
        "/v1/resources/{resourceId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Get resource",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "resourceId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Resource"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Put resource",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "resourceId", "in": "path", "required": true},
                    {"description": "Resource content", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ResourcePutRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Resource"}}
                }
            }
        },
        "/v1/resources/{resourceId}/events": {
            "get": {
                "description": "Mirrors the websocket channel of a resource as text/event-stream",
                "tags": ["events"],
                "summary": "Stream resource events",
                "parameters": [
                    {"type": "string", "description": "Resource id (status ids are <node>/<prefix>, escaped)", "name": "resourceId", "in": "path", "required": true},
                    {"type": "string", "default": "status", "description": "status or editing", "name": "channel", "in": "query"}
                ],
                "responses": {}
            }
        },
        "/v1/resources/{resourceId}/presence": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Get presence",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "resourceId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Editor"}}}
                }
            }
        },
        "/v1/resources/{resourceId}/subscribers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Get subscribers",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "resourceId", "in": "path", "required": true},
                    {"type": "string", "default": "editing", "description": "status or editing", "name": "channel", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "nodeId": {"type": "string"},
                "sessions": {"type": "integer"},
                "uptimeMs": {"type": "integer"}
            }
        },
        "models.ContainerID": {
            "type": "object",
            "properties": {
                "prefix": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "models.ContainerPort": {
            "type": "object",
            "properties": {
                "internal": {"type": "integer"},
                "external": {"type": "integer"}
            }
        },
        "models.Container": {
            "type": "object",
            "properties": {
                "id": {"$ref": "#/definitions/models.ContainerID"},
                "createdAt": {"type": "string"},
                "state": {"type": "string", "enum": ["created", "restarting", "running", "removing", "paused", "exited", "dead"]},
                "reason": {"type": "string"},
                "imageName": {"type": "string"},
                "imageTag": {"type": "string"},
                "ports": {"type": "array", "items": {"$ref": "#/definitions/models.ContainerPort"}}
            }
        },
        "models.ContainerListRequest": {
            "type": "object",
            "properties": {
                "prefix": {"type": "string"},
                "containers": {"type": "array", "items": {"$ref": "#/definitions/models.Container"}}
            }
        },
        "models.PublishResponse": {
            "type": "object",
            "properties": {
                "resourceId": {"type": "string"},
                "delivered": {"type": "integer"}
            }
        },
        "models.Editor": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "models.Resource": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": true},
                "updatedAt": {"type": "string"}
            }
        },
        "models.ResourcePutRequest": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "livesync API",
	Description:      "REST helpers and event streams around the livesync websocket channels.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
