// Package openapi builds the OpenAPI 3.1 document describing the apikey-hub
// HTTP surface. The API is static, so the document is assembled once at
// startup and served as-is.
package openapi

import (
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

// Document assembles the OpenAPI description of the service.
func Document(version, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "apikey-hub API",
			Description: "Issue, verify, rotate and revoke API keys bound to user accounts.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}

	doc.Components.Schemas["APIKey"] = &openapi3.SchemaRef{Value: apiKeySchema()}
	doc.Components.Schemas["APIKeyWithSecret"] = &openapi3.SchemaRef{Value: apiKeyWithSecretSchema()}
	doc.Components.Schemas["ListResponse"] = &openapi3.SchemaRef{Value: listResponseSchema()}
	doc.Components.Schemas["VerificationResult"] = &openapi3.SchemaRef{
		Value: objectSchema(map[string]*openapi3.Schema{
			"verified": typed("boolean"),
		}),
	}
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: objectSchema(map[string]*openapi3.Schema{
			"code_error":    typed("string"),
			"message_error": typed("string"),
		}),
	}

	doc.Paths = openapi3.NewPaths()
	addKeyPaths(doc)
	addVerifyPath(doc)
	addSystemPaths(doc)
	return doc
}

func addKeyPaths(doc *openapi3.T) {
	bearer := openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/keys", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "createApiKey",
			Summary:     "Issue a new API key for the authenticated user",
			Description: "The raw key appears in this response exactly once and is never retrievable again.",
			Security:    &bearer,
			Responses: responses(map[int]*openapi3.Response{
				201: jsonResponse("Created key including the one-time raw secret", "#/components/schemas/APIKeyWithSecret"),
				403: errorResponse("Access denied"),
			}),
		},
		Get: &openapi3.Operation{
			OperationID: "listApiKeys",
			Summary:     "List API key records",
			Security:    &bearer,
			Parameters: openapi3.Parameters{
				queryParam("owner_id", "string", "Filter by owning user id"),
				queryParam("is_active", "boolean", "Filter by active flag"),
				queryParam("last_used_at", "string", "Filter by last-used timestamp (RFC 3339)"),
				queryParam("expires_at", "string", "Filter by expiry timestamp (RFC 3339)"),
				queryParam("created_at", "string", "Filter by creation timestamp (RFC 3339)"),
				queryParam("sort", "string", "Creation-time order: asc or desc (default desc)"),
				queryParam("limit", "integer", "Page size"),
				queryParam("offset", "integer", "Page offset"),
			},
			Responses: responses(map[int]*openapi3.Response{
				200: jsonResponse("Matching records with pagination metadata", "#/components/schemas/ListResponse"),
				422: errorResponse("Invalid filter value"),
			}),
		},
	})

	doc.Paths.Set("/keys/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParam("id")},
		Get: &openapi3.Operation{
			OperationID: "getApiKey",
			Summary:     "Fetch one API key record",
			Security:    &bearer,
			Responses: responses(map[int]*openapi3.Response{
				200: jsonResponse("The record; the digest is never included", "#/components/schemas/APIKey"),
				404: errorResponse("Unknown id"),
			}),
		},
		Put: &openapi3.Operation{
			OperationID: "regenerateApiKey",
			Summary:     "Replace the key's secret with a fresh one",
			Description: "The previous raw key stops verifying immediately. Owner or super admin only.",
			Security:    &bearer,
			Responses: responses(map[int]*openapi3.Response{
				202: jsonResponse("Record with the new one-time raw secret", "#/components/schemas/APIKeyWithSecret"),
				403: errorResponse("Caller is neither the owner nor a super admin"),
				404: errorResponse("Unknown id"),
			}),
		},
		Delete: &openapi3.Operation{
			OperationID: "deleteApiKey",
			Summary:     "Delete the key record",
			Description: "Idempotent: deleting an absent id still succeeds.",
			Security:    &bearer,
			Responses: responses(map[int]*openapi3.Response{
				204: {Description: strPtr("Deleted")},
				403: errorResponse("Access denied"),
			}),
		},
	})

	doc.Paths.Set("/keys/{id}/action", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParam("id")},
		Put: &openapi3.Operation{
			OperationID: "toggleApiKey",
			Summary:     "Activate or deactivate the key",
			Security:    &bearer,
			Parameters: openapi3.Parameters{
				queryParam("action", "string", "activate or deactivate"),
			},
			Responses: responses(map[int]*openapi3.Response{
				202: jsonResponse("Updated record", "#/components/schemas/APIKey"),
				403: errorResponse("Caller is neither the owner nor a super admin"),
				404: errorResponse("Unknown id"),
				422: errorResponse("Unknown action value"),
			}),
		},
	})
}

func addVerifyPath(doc *openapi3.T) {
	apiKey := openapi3.SecurityRequirements{{"apiKey": {}}}
	doc.Paths.Set("/verify-api-key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "verifyApiKey",
			Summary:     "Verify a presented API key",
			Description: "Always answers 200 with a boolean verdict; only a missing X-API-Key header is a 422.",
			Security:    &apiKey,
			Responses: responses(map[int]*openapi3.Response{
				200: jsonResponse("Verification verdict", "#/components/schemas/VerificationResult"),
				422: errorResponse("X-API-Key header missing"),
			}),
		},
	})
}

func addSystemPaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "healthz",
			Summary:     "Liveness probe",
			Responses: responses(map[int]*openapi3.Response{
				200: {Description: strPtr("Process is alive")},
			}),
		},
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "readyz",
			Summary:     "Readiness probe",
			Responses: responses(map[int]*openapi3.Response{
				200: {Description: strPtr("Store reachable")},
				503: errorResponse("Store unreachable"),
			}),
		},
	})
	doc.Paths.Set("/@ping", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "ping",
			Summary:     "Connectivity check",
			Responses: responses(map[int]*openapi3.Response{
				200: {Description: strPtr("pong")},
			}),
		},
	})
}

func apiKeySchema() *openapi3.Schema {
	return objectSchema(map[string]*openapi3.Schema{
		"id":           typed("string"),
		"owner_id":     typed("string"),
		"is_active":    typed("boolean"),
		"last_used_at": formatted("string", "date-time"),
		"expires_at":   formatted("string", "date-time"),
		"created_at":   formatted("string", "date-time"),
		"updated_at":   formatted("string", "date-time"),
	})
}

func apiKeyWithSecretSchema() *openapi3.Schema {
	s := apiKeySchema()
	s.Properties["api_key"] = &openapi3.SchemaRef{Value: typed("string")}
	return s
}

func listResponseSchema() *openapi3.Schema {
	return objectSchema(map[string]*openapi3.Schema{
		"resource": {
			Type:  &openapi3.Types{"array"},
			Items: &openapi3.SchemaRef{Ref: "#/components/schemas/APIKey"},
		},
		"meta": objectSchema(map[string]*openapi3.Schema{
			"count":  typed("integer"),
			"total":  typed("integer"),
			"limit":  typed("integer"),
			"offset": typed("integer"),
		}),
	})
}

func strPtr(s string) *string { return &s }

func typed(t string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{t}}
}

func formatted(t, format string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{t}, Format: format}
}

func objectSchema(props map[string]*openapi3.Schema) *openapi3.Schema {
	s := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: openapi3.Schemas{},
	}
	for name, p := range props {
		s.Properties[name] = &openapi3.SchemaRef{Value: p}
	}
	return s
}

func queryParam(name, typ, desc string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          "query",
			Description: desc,
			Schema:      &openapi3.SchemaRef{Value: typed(typ)},
		},
	}
}

func pathParam(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   &openapi3.SchemaRef{Value: typed("string")},
		},
	}
}

func jsonResponse(desc, ref string) *openapi3.Response {
	return &openapi3.Response{
		Description: strPtr(desc),
		Content: openapi3.Content{
			"application/json": &openapi3.MediaType{
				Schema: &openapi3.SchemaRef{Ref: ref},
			},
		},
	}
}

func errorResponse(desc string) *openapi3.Response {
	return jsonResponse(desc, "#/components/schemas/ErrorResponse")
}

func responses(byStatus map[int]*openapi3.Response) *openapi3.Responses {
	out := openapi3.NewResponses()
	for status, resp := range byStatus {
		out.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	}
	return out
}
