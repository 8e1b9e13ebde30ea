// Package docs holds the OpenAPI description served at /swagger/.
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
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Health"
                ],
                "summary": "Liveness probe",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/students": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "Create a student",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "List students",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/students/{studentID}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "Get a student",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "Delete a student",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/students/{studentID}/preferences": {
            "patch": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "Update student preferences",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/students/{studentID}/sessions": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Students"
                ],
                "summary": "List a student's sessions",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/students/{studentID}/modules/{moduleID}/recommendation": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Modules"
                ],
                "summary": "Recommend a starting level",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "moduleID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/students/{studentID}/modules/{moduleID}/progress": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Modules"
                ],
                "summary": "Get module progress",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "studentID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "moduleID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Start a session",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/sessions/{sessionID}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Get a session",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions/{sessionID}/answers": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Submit an answer",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions/{sessionID}/level": {
            "put": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Change the session level",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions/{sessionID}/interventions/{interventionID}/response": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Answer an intervention",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "interventionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions/{sessionID}/complete": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "Complete a session",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/sessions/{sessionID}/interventions": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Sessions"
                ],
                "summary": "List a session's interventions",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "sessionID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/export": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Export"
                ],
                "summary": "Export data",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/import": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Export"
                ],
                "summary": "Import data",
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
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Adaptive Maths Practice API",
	Description:      "Adaptive difficulty for maths practice sessions: confidence scoring, checkpoint interventions and level recommendations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
