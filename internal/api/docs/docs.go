// Package docs registers the OpenAPI description of the scenario API with swag.
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
        "/scenarios": {
            "get": {
                "description": "List every loadable scenario under the storage root, newest first",
                "produces": ["application/json"],
                "tags": ["scenarios"],
                "summary": "List scenarios",
                "responses": {
                    "200": {
                        "description": "Scenario summaries",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ScenarioSummary"}}
                    },
                    "500": {"description": "Internal server error"}
                }
            },
            "post": {
                "description": "Create a scenario from the server configuration and run the forecast pipeline on it asynchronously",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scenarios"],
                "summary": "Create and run a scenario",
                "parameters": [
                    {
                        "description": "Scenario name and final stage",
                        "name": "scenario",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/model.CreateScenarioRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Run scheduled", "schema": {"$ref": "#/definitions/model.CreateScenarioResponse"}},
                    "400": {"description": "Invalid request payload"},
                    "409": {"description": "Scenario already exists"}
                }
            }
        },
        "/scenarios/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scenarios"],
                "summary": "Get scenario",
                "parameters": [{"type": "string", "description": "Scenario name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Scenario summary", "schema": {"$ref": "#/definitions/model.ScenarioSummary"}},
                    "404": {"description": "Scenario not found"}
                }
            }
        },
        "/scenarios/{name}/output": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scenarios"],
                "summary": "Get scenario outputs",
                "parameters": [{"type": "string", "description": "Scenario name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Recorded metrics", "schema": {"$ref": "#/definitions/model.ScenarioOutput"}},
                    "404": {"description": "Scenario not found"}
                }
            }
        },
        "/scenarios/{name}/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List scenario runs",
                "parameters": [{"type": "string", "description": "Scenario name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Runs with operator outcomes", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.RunDetail"}}},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/scenarios/{name}/artifacts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["artifacts"],
                "summary": "List scenario artifacts",
                "parameters": [{"type": "string", "description": "Scenario name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Artifacts", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Artifact"}}},
                    "404": {"description": "Scenario not found"}
                }
            }
        },
        "/scenarios/{name}/artifacts/{path}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["artifacts"],
                "summary": "Download an artifact",
                "parameters": [
                    {"type": "string", "description": "Scenario name", "name": "name", "in": "path", "required": true},
                    {"type": "string", "description": "Artifact path inside the scenario", "name": "path", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File content"},
                    "400": {"description": "Unsafe path"},
                    "404": {"description": "Artifact not found"}
                }
            }
        }
    },
    "definitions": {
        "model.ScenarioSummary": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "hash": {"type": "string"},
                "stage": {"type": "string"},
                "test": {"type": "boolean"},
                "source_revision": {"type": "string"},
                "run_id": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "model.CreateScenarioRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "final_stage": {"type": "string"}
            }
        },
        "model.CreateScenarioResponse": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "final_stage": {"type": "string"},
                "status": {"type": "string"},
                "message": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "model.ScenarioOutput": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "stage": {"type": "string"},
                "outputs": {"type": "object", "additionalProperties": {}}
            }
        },
        "model.OperatorRecord": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "operator": {"type": "string"},
                "target_stage": {"type": "string"},
                "status": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "duration": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "model.RunDetail": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "scenario": {"type": "string"},
                "begin_stage": {"type": "string"},
                "final_stage": {"type": "string"},
                "test": {"type": "boolean"},
                "status": {"type": "string"},
                "error": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "operators": {"type": "array", "items": {"$ref": "#/definitions/model.OperatorRecord"}}
            }
        },
        "model.Artifact": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "type": {"type": "string"},
                "size": {"type": "integer"},
                "download_url": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Forecast Pipeline API",
	Description:      "Create demand forecast scenarios, follow their runs and download their artifacts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
