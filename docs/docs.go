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
        "/v1/api/status": {
            "get": {
                "description": "Current connection status; check=true probes the backend first",
                "produces": ["application/json"],
                "tags": ["STATUS"],
                "summary": "Connection status",
                "parameters": [
                    {"type": "boolean", "description": "probe the backend", "name": "check", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/api/sessions": {
            "get": {
                "description": "Stored sessions reconciled with the backend, most recently active first",
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "List sessions",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "description": "Creates a remote session and makes it current",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "Create session",
                "parameters": [
                    {"description": "CreateSession", "name": "CreateSession", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/api/sessions/current": {
            "get": {
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "Current session",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/v1/api/sessions/{id}": {
            "get": {
                "description": "One session with its history",
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "Get session",
                "parameters": [
                    {"type": "string", "description": "session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "Delete session",
                "parameters": [
                    {"type": "string", "description": "session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/api/sessions/{id}/switch": {
            "post": {
                "description": "Makes a session current, fetching it when it is not cached",
                "produces": ["application/json"],
                "tags": ["SESSIONS"],
                "summary": "Switch session",
                "parameters": [
                    {"type": "string", "description": "session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/api/sessions/{id}/query": {
            "post": {
                "description": "Relays the backend stream as server-sent events (start, delta, complete, error)",
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["QUERY"],
                "summary": "Stream a query",
                "parameters": [
                    {"type": "string", "description": "session id, defaults to the current session", "name": "id", "in": "path", "required": true},
                    {"description": "Query", "name": "Query", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "event stream"}}
            }
        },
        "/v1/api/lifecycle": {
            "get": {
                "produces": ["application/json"],
                "tags": ["LIFECYCLE"],
                "summary": "Lifecycle state",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/api/lifecycle/{event}": {
            "post": {
                "description": "Queues a transition: foreground, background or terminate",
                "produces": ["application/json"],
                "tags": ["LIFECYCLE"],
                "summary": "Lifecycle notification",
                "parameters": [
                    {"type": "string", "description": "foreground | background | terminate", "name": "event", "in": "path", "required": true}
                ],
                "responses": {"202": {"description": "Accepted"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:9089",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Session Sync APIs",
	Description:      "Local control API of the session synchronization engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
