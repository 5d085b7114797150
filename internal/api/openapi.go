package api

import "net/http"

type route struct {
	method, path, operationID, summary string
	responses                          map[string]string
}

var routes = []route{
	{http.MethodPost, "/images", "submitImage", "Fingerprint, register and process a source image",
		map[string]string{"201": "Processed, duplicate or failure recorded", "400": "Bad request", "404": "File not found", "409": "Path registered with different content"}},
	{http.MethodGet, "/images/get-image-id", "getImageID", "Resolve a source path to its file hash",
		map[string]string{"200": "Hash found", "400": "Bad request", "404": "No job for path"}},
	{http.MethodGet, "/images/{file_hash}", "getImage", "Job detail",
		map[string]string{"200": "Job", "404": "Unknown hash"}},
	{http.MethodDelete, "/images/{file_hash}", "deleteImage", "Remove a job and its derived file",
		map[string]string{"204": "Deleted", "404": "Unknown hash"}},
	{http.MethodGet, "/random-image", "randomImage", "A random processed image as base64 JPEG",
		map[string]string{"200": "Image", "404": "No processed images"}},
	{http.MethodGet, "/events", "events", "Server-sent job lifecycle events",
		map[string]string{"200": "text/event-stream"}},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the image routes.
func buildOpenAPIDoc(secured bool) map[string]any {
	paths := map[string]any{}
	for _, rt := range routes {
		responses := map[string]any{}
		for code, desc := range rt.responses {
			responses[code] = map[string]any{"description": desc}
		}
		op := map[string]any{
			"operationId": rt.operationID,
			"summary":     rt.summary,
			"responses":   responses,
		}
		if secured {
			op["security"] = []any{map[string]any{"BearerAuth": []string{}}}
		}
		item, ok := paths[rt.path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[methodKey(rt.method)] = op
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "imageledger",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
		},
	}
}

func methodKey(m string) string {
	switch m {
	case http.MethodPost:
		return "post"
	case http.MethodDelete:
		return "delete"
	default:
		return "get"
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.APIKey != ""))
}
