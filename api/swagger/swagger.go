package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Registration API",
        "description": "Slot allocation for academy course registration",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Public", "description": "Registration page: period state, slot grid, change feed and procedures"},
        {"name": "Periods", "description": "Registration period administration"},
        {"name": "Slots", "description": "Weekly slot grid administration"},
        {"name": "Registrations", "description": "Registration ledger, timetable and exports"},
        {"name": "Authentication", "description": "Admin token issuing"}
    ],
    "paths": {
        "/auth/token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Issue an admin access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/periods/{id}": {
            "get": {
                "tags": ["Public"],
                "summary": "Period with its current state and the server clock",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/periods/{id}/slots": {
            "get": {
                "tags": ["Public"],
                "summary": "Slot grid with live seat counts",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/periods/{id}/events": {
            "get": {
                "tags": ["Public"],
                "summary": "Stream slot and registration changes",
                "description": "Websocket stream of JSON change events. Plain GET requests without an upgrade get the same events as server-sent events.",
                "produces": ["application/json", "text/event-stream"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "101": {"description": "Switched to websocket"},
                    "200": {"description": "Server-sent event stream"},
                    "404": {"description": "Period not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/periods/{id}/registrations": {
            "post": {
                "tags": ["Public"],
                "summary": "Submit a registration and claim its slots atomically",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Procedure outcome", "schema": {"$ref": "#/definitions/ProcedureResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Public"],
                "summary": "Replace the slot selection of an existing registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Procedure outcome", "schema": {"$ref": "#/definitions/ProcedureResponse"}}
                }
            }
        },
        "/public/periods/{id}/registrations/lookup": {
            "get": {
                "tags": ["Public"],
                "summary": "Find the active registration for a phone number",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "phone", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "List periods of the academy",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Periods"],
                "summary": "Create period",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PeriodRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}": {
            "get": {
                "tags": ["Periods"],
                "summary": "Get period",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Periods"],
                "summary": "Update period",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PeriodRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Periods"],
                "summary": "Delete period with its slots and registrations",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/admin/periods/{id}/active": {
            "patch": {
                "tags": ["Periods"],
                "summary": "Activate or deactivate a period",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetPeriodActiveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List slots of a period",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Slots"],
                "summary": "Add a single slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Slots"],
                "summary": "Delete every slot, or the slots of one day",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "day", "in": "query", "type": "string", "enum": ["mon", "tue", "wed", "thu", "fri"]},
                    {"name": "force", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slots are occupied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/slots/generate": {
            "post": {
                "tags": ["Slots"],
                "summary": "Generate a weekly slot grid",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateSlotsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slots overlap existing ones", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/slots/{slotId}": {
            "delete": {
                "tags": ["Slots"],
                "summary": "Delete one slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "slotId", "in": "path", "required": true, "type": "string"},
                    {"name": "force", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot is occupied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/slots/{slotId}/capacity": {
            "patch": {
                "tags": ["Slots"],
                "summary": "Change slot capacity",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "slotId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateCapacityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK, with a warning when the new capacity is below the seat count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/registrations": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List registrations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "confirmed", "waiting", "cancelled"]},
                    {"name": "unmask", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/timetable": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Weekly timetable of registered students per slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "unmask", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/periods/{id}/export": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Export registrations",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/admin/periods/{id}/reset": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Cancel every active registration and zero the seat counts",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/registrations/{regId}": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Registration detail",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "regId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/registrations/{regId}/cancel": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Cancel a registration and release its seats",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "regId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Procedure outcome", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TokenRequest": {
            "type": "object",
            "required": ["academy_id", "user_id", "bootstrap_key"],
            "properties": {
                "academy_id": {"type": "string"},
                "user_id": {"type": "string"},
                "role": {"type": "string", "enum": ["SUPERADMIN", "ADMIN", "STAFF"]},
                "bootstrap_key": {"type": "string"}
            }
        },
        "PeriodRequest": {
            "type": "object",
            "required": ["name", "open_datetime"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "open_datetime": {"type": "string", "format": "date-time"},
                "close_datetime": {"type": "string", "format": "date-time"},
                "default_capacity": {"type": "integer"},
                "slot_interval_minutes": {"type": "integer"},
                "max_weekly_hours": {"type": "integer"},
                "is_active": {"type": "boolean"}
            }
        },
        "SetPeriodActiveRequest": {
            "type": "object",
            "required": ["active"],
            "properties": {
                "active": {"type": "boolean"}
            }
        },
        "GenerateSlotsRequest": {
            "type": "object",
            "required": ["days", "start_time", "end_time"],
            "properties": {
                "days": {"type": "array", "items": {"type": "string", "enum": ["mon", "tue", "wed", "thu", "fri"]}},
                "start_time": {"type": "string", "example": "14:00"},
                "end_time": {"type": "string", "example": "18:00"},
                "interval_minutes": {"type": "integer"},
                "capacity": {"type": "integer"}
            }
        },
        "AddSlotRequest": {
            "type": "object",
            "required": ["day_of_week", "start_time"],
            "properties": {
                "day_of_week": {"type": "string", "enum": ["mon", "tue", "wed", "thu", "fri"]},
                "start_time": {"type": "string", "example": "14:00"},
                "capacity": {"type": "integer"}
            }
        },
        "UpdateCapacityRequest": {
            "type": "object",
            "required": ["capacity"],
            "properties": {
                "capacity": {"type": "integer"}
            }
        },
        "RegistrationRequest": {
            "type": "object",
            "required": ["student_name", "school_name", "grade", "guardian_phone", "selected_slot_ids"],
            "properties": {
                "student_name": {"type": "string"},
                "school_name": {"type": "string"},
                "grade": {"type": "integer", "minimum": 1, "maximum": 6},
                "guardian_phone": {"type": "string", "example": "010-1234-5678"},
                "selected_slot_ids": {"type": "array", "items": {"type": "string", "format": "uuid"}}
            }
        },
        "ProcedureResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "registration": {"type": "object"},
                "error": {"type": "string", "enum": ["DUPLICATE_PHONE", "CAPACITY_EXCEEDED", "SLOTS_FULL", "NOT_FOUND", "PERIOD_NOT_OPEN", "VALIDATION"]},
                "message": {"type": "string"},
                "full_slots": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
