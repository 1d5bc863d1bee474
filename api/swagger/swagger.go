package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Municipal Pool Registry API",
        "description": "Records management API for municipal swimming pool registrations",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Pools", "description": "Pool registration records"},
        {"name": "Auth", "description": "Accounts and token lifecycle"},
        {"name": "Users", "description": "User profiles"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/pool/all/": {
            "get": {
                "tags": ["Pools"],
                "summary": "List all pool registrations",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pool/create/": {
            "post": {
                "tags": ["Pools"],
                "summary": "Register a new pool",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePoolRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure"},
                    "403": {"description": "Requires admin or inspector role"}
                }
            }
        },
        "/pool/all/{id}/": {
            "get": {
                "tags": ["Pools"],
                "summary": "Get a pool by id",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Pools"],
                "summary": "Replace a pool registration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePoolRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure"},
                    "403": {"description": "Requires admin or inspector role"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/pool/state/{state}/": {
            "get": {
                "tags": ["Pools"],
                "summary": "List pools by resolution state",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "state", "in": "path", "required": true, "type": "string", "enum": ["RES_EXPIRED", "RES_VALID"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown state"}
                }
            }
        },
        "/pool/district/{district}/": {
            "get": {
                "tags": ["Pools"],
                "summary": "List pools by district (case-insensitive)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "district", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pool/statistics/": {
            "get": {
                "tags": ["Pools"],
                "summary": "Count of pools grouped by resolution state",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pool/filters/": {
            "get": {
                "tags": ["Pools"],
                "summary": "Filter pools by state, condition and district",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "state", "in": "query", "type": "string"},
                    {"name": "current_state", "in": "query", "type": "string"},
                    {"name": "district", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown enum value"}
                }
            }
        },
        "/pool/export/": {
            "get": {
                "tags": ["Pools"],
                "summary": "Download the registry as CSV",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV file"}
                }
            }
        },
        "/auth/users/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Create a citizen account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure"}
                }
            },
            "get": {
                "tags": ["Users"],
                "summary": "List user accounts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Requires admin role"}
                }
            }
        },
        "/auth/users/superuser/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Create a superuser account",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Requires admin role"}
                }
            }
        },
        "/auth/jwt/create/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange credentials for a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TokenPairResponse"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/jwt/refresh/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TokenPairResponse"}},
                    "401": {"description": "Token unknown, revoked or expired"}
                }
            }
        },
        "/auth/logout/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke a refresh token",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/auth/social/callback/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Resolve a social login to a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SocialLoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/TokenPairResponse"}}
                }
            }
        },
        "/auth/users/me/": {
            "get": {
                "tags": ["Users"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/users/set_password/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Change the current user's password",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Changed"},
                    "401": {"description": "Current password mismatch"}
                }
            }
        },
        "/auth/users/reset_password/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Request a password reset email",
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/auth/users/reset_password_confirm/": {
            "post": {
                "tags": ["Auth"],
                "summary": "Set a new password with a reset token",
                "responses": {
                    "204": {"description": "Reset"},
                    "401": {"description": "Reset token invalid or expired"}
                }
            }
        }
    },
    "definitions": {
        "CreatePoolRequest": {
            "type": "object",
            "properties": {
                "file_number": {"type": "string"},
                "legal_name": {"type": "string"},
                "commercial_name": {"type": "string"},
                "pool_type": {"type": "string"},
                "address": {"type": "string"},
                "district": {"type": "string"},
                "capacity": {"type": "integer"},
                "area_m2": {"type": "number"},
                "volume_m3": {"type": "number"},
                "approval_resolution_number": {"type": "string"},
                "approval_date": {"type": "string", "format": "date"},
                "state": {"type": "string", "enum": ["RES_EXPIRED", "RES_VALID"]},
                "observations": {"type": "string"},
                "expiration_date": {"type": "string", "format": "date"},
                "last_inspection_date": {"type": "string", "format": "date"},
                "current_state": {"type": "string", "enum": ["HEALTHY", "UNHEALTHY"]},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "image_url": {"type": "string"},
                "rating": {"type": "number"}
            },
            "required": ["file_number", "legal_name", "pool_type", "address", "district"]
        },
        "SignupRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "username": {"type": "string"},
                "password": {"type": "string"},
                "re_password": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"}
            },
            "required": ["email", "username", "password", "re_password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh": {"type": "string"}
            },
            "required": ["refresh"]
        },
        "SocialLoginRequest": {
            "type": "object",
            "properties": {
                "provider": {"type": "string"},
                "email": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"}
            },
            "required": ["provider", "email"]
        },
        "TokenPairResponse": {
            "type": "object",
            "properties": {
                "access": {"type": "string"},
                "refresh": {"type": "string"},
                "expires_in": {"type": "integer"},
                "issued_at": {"type": "string", "format": "date-time"}
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
