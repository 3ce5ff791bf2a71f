package api

// adminRoute describes one protected admin endpoint.
type adminRoute struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Responses   map[string]string
	HasBody     bool
}

var adminRoutes = []adminRoute{
	{
		Method: "post", Path: "/api/admin/seed/client", OperationID: "seedClient",
		Summary: "Create or update a client directory entry", HasBody: true,
		Responses: map[string]string{"200": "Entry stored", "400": "Missing clientId or notificationChannel", "409": "Sender claimed by another client"},
	},
	{
		Method: "get", Path: "/api/admin/directory/{clientID}", OperationID: "getClient",
		Summary:   "Fetch a client directory entry",
		Responses: map[string]string{"200": "Directory entry", "404": "Client not found"},
	},
	{
		Method: "post", Path: "/api/admin/test/client-message", OperationID: "createTestMessage",
		Summary: "Store an inbound event for relay", HasBody: true,
		Responses: map[string]string{"200": "Event stored", "400": "Missing clientId or source"},
	},
	{
		Method: "get", Path: "/api/admin/events/{eventID}", OperationID: "getEvent",
		Summary:   "Fetch a stored inbound event",
		Responses: map[string]string{"200": "Inbound event", "404": "Event not found"},
	},
	{
		Method: "get", Path: "/api/admin/events", OperationID: "streamEvents",
		Summary:   "Server-sent stream of event lifecycle changes",
		Responses: map[string]string{"200": "text/event-stream"},
	},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering the admin routes.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}

	for _, route := range adminRoutes {
		responses := map[string]any{
			"401": map[string]any{"description": "Unauthorized"},
		}
		for code, desc := range route.Responses {
			responses[code] = map[string]any{"description": desc}
		}

		operation := map[string]any{
			"operationId": route.OperationID,
			"summary":     route.Summary,
			"tags":        []string{"admin"},
			"responses":   responses,
			"security":    []any{map[string]any{"BearerAuth": []string{}}},
		}
		if route.HasBody {
			operation["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{"type": "object"},
					},
				},
			}
		}

		item, _ := paths[route.Path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[route.Path] = item
		}
		item[route.Method] = operation
	}

	paths["/healthz"] = map[string]any{
		"get": map[string]any{
			"operationId": "healthz",
			"summary":     "Liveness and relay queue depth",
			"responses":   map[string]any{"200": map[string]any{"description": "Service healthy"}},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Courier Admin API",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
