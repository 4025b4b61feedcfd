// Package docs holds the OpenAPI document served at /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/users": {
            "post": {
                "tags": [
                    "users"
                ],
                "summary": "Create a user",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "get": {
                "tags": [
                    "users"
                ],
                "summary": "List users",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/users/{email}": {
            "get": {
                "tags": [
                    "users"
                ],
                "summary": "Get a user",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "put": {
                "tags": [
                    "users"
                ],
                "summary": "Update your profile",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "delete": {
                "tags": [
                    "users"
                ],
                "summary": "Deactivate your account",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs": {
            "get": {
                "tags": [
                    "clubs"
                ],
                "summary": "List visible clubs",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "clubs"
                ],
                "summary": "Create a new club",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}": {
            "get": {
                "tags": [
                    "clubs"
                ],
                "summary": "Get a club",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "put": {
                "tags": [
                    "clubs"
                ],
                "summary": "Update a club",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "delete": {
                "tags": [
                    "clubs"
                ],
                "summary": "Disband a club",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/exists": {
            "get": {
                "tags": [
                    "clubs"
                ],
                "summary": "Check whether a slug is taken",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/members": {
            "get": {
                "tags": [
                    "members"
                ],
                "summary": "List members",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "members"
                ],
                "summary": "Add a member",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/members/{email}/role": {
            "get": {
                "tags": [
                    "members"
                ],
                "summary": "Find a member's role",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/members/{email}": {
            "put": {
                "tags": [
                    "members"
                ],
                "summary": "Change a member's role",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "delete": {
                "tags": [
                    "members"
                ],
                "summary": "Remove a member",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/members/{email}/reinstate": {
            "post": {
                "tags": [
                    "members"
                ],
                "summary": "Reinstate a departed member",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/rotation": {
            "get": {
                "tags": [
                    "rotation"
                ],
                "summary": "Get rotation status",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/rotation/advance": {
            "post": {
                "tags": [
                    "rotation"
                ],
                "summary": "Advance to the next picker",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/rotation/order": {
            "put": {
                "tags": [
                    "rotation"
                ],
                "summary": "Replace the rotation order",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/rotation/picks": {
            "get": {
                "tags": [
                    "rotation"
                ],
                "summary": "List past picks",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "rotation"
                ],
                "summary": "Pick the next book",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/rotation/picks/complete": {
            "post": {
                "tags": [
                    "rotation"
                ],
                "summary": "Complete the open pick",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/discussions": {
            "get": {
                "tags": [
                    "discussions"
                ],
                "summary": "List discussions",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "discussions"
                ],
                "summary": "Start a discussion",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/discussions/{id}": {
            "get": {
                "tags": [
                    "discussions"
                ],
                "summary": "Get a discussion with its replies",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "delete": {
                "tags": [
                    "discussions"
                ],
                "summary": "Archive a discussion or reply",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/clubs/{slug}/discussions/{id}/replies": {
            "post": {
                "tags": [
                    "discussions"
                ],
                "summary": "Reply to a discussion or reply",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": [
                    "notifications"
                ],
                "summary": "List your notifications",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/notifications/unread-count": {
            "get": {
                "tags": [
                    "notifications"
                ],
                "summary": "Count unread notifications",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": [
                    "notifications"
                ],
                "summary": "Mark a notification read",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/notifications/read-all": {
            "post": {
                "tags": [
                    "notifications"
                ],
                "summary": "Mark all notifications read",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Book Club API",
	Description:      "Book clubs with a rotating book picker, member roles and threaded discussions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
