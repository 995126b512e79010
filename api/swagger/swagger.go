package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Conference Timetable API",
        "description": "Transactional timetable editing with commit-time consistency checks.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetable", "description": "Timetable transactions, audits and violation reports"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/events/{id}/timetable": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Persisted timetable of an event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Event not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/{id}/timetable/violations": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Audit an event timetable",
                "description": "Validates every persisted entry against the timetable invariants. meta.cache_hit tells whether the report came from cache.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Event not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/{id}/timetable/violations/export": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Download a violation report",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "Report file", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Exports disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/transactions": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Apply a timetable transaction",
                "description": "Stages every operation and commits them atomically. A commit that breaks any invariant is rejected and meta.violations lists every violation.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Committed without new entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Committed with new entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed or structurally invalid operation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown event", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Rejected by timetable invariants", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/audits/sweep": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Run an audit sweep now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A sweep is already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Sweep disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SessionLink": {
            "type": "object",
            "required": ["session_id", "session_block_id"],
            "properties": {
                "session_id": {"type": "string"},
                "session_block_id": {"type": "string"}
            }
        },
        "TimetableOperation": {
            "type": "object",
            "required": ["op"],
            "properties": {
                "op": {"type": "string", "enum": ["schedule", "move", "resize", "remove"]},
                "event_id": {"type": "string"},
                "entry_id": {"type": "string"},
                "parent_id": {"type": "string"},
                "type": {"type": "string", "enum": ["SESSION_BLOCK", "CONTRIBUTION", "BREAK"]},
                "start_dt": {"type": "string", "format": "date-time"},
                "duration_minutes": {"type": "integer"},
                "session_block_id": {"type": "string"},
                "session_id": {"type": "string"},
                "contribution_id": {"type": "string"},
                "session": {"$ref": "#/definitions/SessionLink"},
                "track_id": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "ApplyTimetableRequest": {
            "type": "object",
            "required": ["operations"],
            "properties": {
                "operations": {"type": "array", "items": {"$ref": "#/definitions/TimetableOperation"}}
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
