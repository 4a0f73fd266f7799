package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Olympiad Registration API",
        "description": "Student registration for academic olympiad calls: area selection, payment orders and record reconciliation.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Access tokens"},
        {"name": "Calls", "description": "Calls for registration and their areas"},
        {"name": "Schools", "description": "School catalogue"},
        {"name": "Students", "description": "Student records"},
        {"name": "Registrations", "description": "Area selection and payment orders"},
        {"name": "Admin", "description": "Registration reconciliation"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calls": {
            "get": {
                "tags": ["Calls"],
                "summary": "List calls for registration",
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Calls"],
                "summary": "Create call",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CallRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calls/{id}": {
            "get": {
                "tags": ["Calls"],
                "summary": "Get call detail with areas",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Calls"],
                "summary": "Update call",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CallRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calls/{id}/areas": {
            "put": {
                "tags": ["Calls"],
                "summary": "Replace the areas of a call",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceAreasRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calls/{id}/eligible-areas": {
            "get": {
                "tags": ["Calls"],
                "summary": "Areas of a call annotated for a course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "course", "in": "query", "required": true, "type": "integer", "minimum": 1, "maximum": 12}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schools": {
            "get": {
                "tags": ["Schools"],
                "summary": "List schools",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "department", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schools"],
                "summary": "Create school",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSchoolRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "school_id", "in": "query", "type": "string"},
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "CI already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student detail",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/quote": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Preview an area selection",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Submit an area selection",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Pending registration replaced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Window closed or registration finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Ineligible area or too many areas", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/{id}": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Get registration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Registrations"],
                "summary": "Cancel a pending registration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "409": {"description": "Finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/{id}/payment": {
            "put": {
                "tags": ["Registrations"],
                "summary": "Record payment verification",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaymentStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/reconciliations": {
            "post": {
                "tags": ["Admin"],
                "summary": "Reconcile stored registrations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "dry_run", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Dry run report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/reconciliations/latest": {
            "get": {
                "tags": ["Admin"],
                "summary": "Last applied reconciliation",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No run yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/registrations/export": {
            "get": {
                "tags": ["Admin"],
                "summary": "Export registrations as CSV",
                "produces": ["text/csv"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "call_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "paid", "verified", "rejected"]},
                    {"name": "semicolon", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "CSV file", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users": {
            "post": {
                "tags": ["Users"],
                "summary": "Create account",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get account",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "TUTOR", "STUDENT"]},
                "password": {"type": "string"},
                "student_id": {"type": "string"}
            },
            "required": ["email", "full_name", "role", "password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "AreaRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "requirements": {"type": "string", "example": "4-12"}
            },
            "required": ["name", "description"]
        },
        "CallRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "starts_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"},
                "cost_per_area": {"type": "number"},
                "max_areas": {"type": "integer", "minimum": 1},
                "active": {"type": "boolean"},
                "areas": {"type": "array", "items": {"$ref": "#/definitions/AreaRequest"}}
            },
            "required": ["name", "starts_at", "ends_at", "max_areas"]
        },
        "ReplaceAreasRequest": {
            "type": "object",
            "properties": {
                "areas": {"type": "array", "items": {"$ref": "#/definitions/AreaRequest"}}
            },
            "required": ["areas"]
        },
        "CreateSchoolRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "department": {"type": "string"},
                "province": {"type": "string"}
            },
            "required": ["name", "department"]
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "ci": {"type": "string", "example": "1234567-1A"},
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string", "example": "71234567"},
                "course": {"type": "integer", "minimum": 1, "maximum": 12},
                "school_id": {"type": "string"},
                "tutor_id": {"type": "string"}
            },
            "required": ["ci", "full_name", "course", "school_id"]
        },
        "RegistrationRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "call_id": {"type": "string"},
                "area_ids": {"type": "array", "items": {"type": "string"}},
                "kind": {"type": "string", "enum": ["individual", "group"]}
            },
            "required": ["student_id", "call_id"]
        },
        "PaymentStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["pending", "paid", "verified", "rejected"]}
            },
            "required": ["status"]
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
