// Package docs registra el documento OpenAPI que sirve /swagger/*.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/appointments": {
            "get": {
                "tags": ["appointments"],
                "summary": "Listar citas de la clínica",
                "parameters": [
                    {"type": "string", "description": "CSV de status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/appointment"}}}
                }
            },
            "post": {
                "tags": ["appointments"],
                "summary": "Agendar cita",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/bookRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/appointment"}},
                    "400": {"description": "date/time fuera de formato"}
                }
            }
        },
        "/appointments/{appointmentID}": {
            "get": {
                "tags": ["appointments"],
                "summary": "Obtener cita",
                "parameters": [
                    {"type": "string", "name": "appointmentID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/appointment"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/appointments/{appointmentID}/status": {
            "post": {
                "tags": ["appointments"],
                "summary": "Cambiar status (no_show reservado al reconciler)",
                "parameters": [
                    {"type": "string", "name": "appointmentID", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/setStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/appointment"}},
                    "409": {"description": "no_show reservado o cita ya en no_show"}
                }
            }
        },
        "/reconciler/status": {
            "get": {
                "tags": ["reconciler"],
                "summary": "Estado de la sesión de reconciliación",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/reconciler/sweep": {
            "post": {
                "tags": ["reconciler"],
                "summary": "Correr un sweep ahora",
                "responses": {"200": {"description": "OK"}, "409": {"description": "sin sesión o sweep en curso"}}
            }
        }
    },
    "definitions": {
        "appointment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "clinic_id": {"type": "string"},
                "patient_name": {"type": "string"},
                "notes": {"type": "string"},
                "date": {"type": "string", "example": "5 March 2025"},
                "time": {"type": "string", "example": "02:30 pm"},
                "status": {"type": "string", "enum": ["pending", "confirmed", "skipped", "in_progress", "completed", "cancelled", "no_show"]},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "bookRequest": {
            "type": "object",
            "properties": {
                "patient_name": {"type": "string"},
                "notes": {"type": "string"},
                "date": {"type": "string", "example": "5 March 2025"},
                "time": {"type": "string", "example": "02:30 pm"}
            }
        },
        "setStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
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
	Title:            "clinic-appointments API",
	Description:      "Citas por clínica y reconciliación automática de no-shows.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
