package schema

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/restless/pkg/httputil"
)

// OpenAPIInfo contains API metadata for the OpenAPI document.
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// OpenAPI renders the registry as an OpenAPI 3.1 document.
type OpenAPI struct {
	registry *Registry
	baseURL  string
	info     OpenAPIInfo
	secured  bool
}

func NewOpenAPI(registry *Registry, baseURL string, info OpenAPIInfo) *OpenAPI {
	return &OpenAPI{
		registry: registry,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		info:     info,
	}
}

// WithSecurity declares bearer and basic authentication schemes.
func (g *OpenAPI) WithSecurity(enabled bool) *OpenAPI {
	g.secured = enabled
	return g
}

func (g *OpenAPI) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, g.Document())
}

func (g *OpenAPI) Document() map[string]any {
	paths := make(map[string]any)
	schemas := make(map[string]any)

	for name, e := range g.registry.Snapshot() {
		paths["/"+name] = g.collectionOperations(e)
		paths[fmt.Sprintf("/%s/{%s}", name, e.PrimaryKey)] = g.instanceOperations(e)
		paths["/eval/"+name] = map[string]any{
			"get": operation(fmt.Sprintf("Evaluate functions over %s", name), e, nil,
				response("200", "Function results", map[string]any{"type": "object"}),
				response("204", "No results", nil)),
		}
		schemas[name] = entitySchema(e)
	}
	schemas["Error"] = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message":           map[string]string{"type": "string"},
			"validation_errors": map[string]any{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
		},
	}

	components := map[string]any{"schemas": schemas}
	doc := map[string]any{
		"openapi":    "3.1.0",
		"info":       g.info,
		"servers":    []map[string]string{{"url": g.baseURL}},
		"paths":      paths,
		"components": components,
	}

	if g.secured {
		components["securitySchemes"] = map[string]any{
			"bearerAuth": map[string]string{"type": "http", "scheme": "bearer"},
			"basicAuth":  map[string]string{"type": "http", "scheme": "basic"},
		}
		doc["security"] = []map[string][]string{{"bearerAuth": {}}, {"basicAuth": {}}}
	}
	return doc
}

func (g *OpenAPI) collectionOperations(e *Entity) map[string]any {
	ref := schemaRef(e.Name)
	list := map[string]any{
		"type":       "object",
		"properties": map[string]any{"objects": map[string]any{"type": "array", "items": ref}},
	}
	return map[string]any{
		"get": withParams(operation("Search "+e.Name, e, nil, response("200", "Matching objects", list)),
			queryParam("q", "JSON search: filters, order_by, limit, offset, single, functions"),
			queryParam("order", "Shorthand ordering, e.g. age.desc,name"),
			queryParam("limit", "Maximum number of objects"),
			queryParam("offset", "Number of objects to skip")),
		"post": operation("Create "+e.Name, e, ref,
			response("201", "Created", map[string]any{
				"type":       "object",
				"properties": map[string]any{e.PrimaryKey: columnSchema(mustColumn(e, e.PrimaryKey))},
			})),
		"patch": operation("Update every "+e.Name+" matching the search in the body", e, map[string]string{"type": "object"},
			response("200", "Number of modified objects", map[string]any{
				"type":       "object",
				"properties": map[string]any{"num_modified": map[string]string{"type": "integer"}},
			})),
	}
}

func (g *OpenAPI) instanceOperations(e *Entity) map[string]any {
	ref := schemaRef(e.Name)
	pk := map[string]any{
		"name":     e.PrimaryKey,
		"in":       "path",
		"required": true,
		"schema":   columnSchema(mustColumn(e, e.PrimaryKey)),
	}
	return map[string]any{
		"get":    withParams(operation("Get "+e.Name, e, nil, response("200", "Object", ref)), pk),
		"patch":  withParams(operation("Update "+e.Name, e, ref, response("200", "Updated object", ref), response("204", "Updated", nil)), pk),
		"put":    withParams(operation("Update "+e.Name, e, ref, response("200", "Updated object", ref), response("204", "Updated", nil)), pk),
		"delete": withParams(operation("Delete "+e.Name, e, nil, response("204", "Deleted", nil)), pk),
	}
}

type responseSpec struct {
	code        string
	description string
	schema      any
}

func response(code, description string, schema any) responseSpec {
	return responseSpec{code, description, schema}
}

func operation(summary string, e *Entity, body any, ok ...responseSpec) map[string]any {
	errRef := schemaRef("Error")
	responses := map[string]any{
		"400": map[string]any{"description": "Bad Request", "content": jsonContent(errRef)},
		"401": map[string]any{"description": "Unauthorized", "content": jsonContent(errRef)},
	}
	for _, r := range ok {
		resp := map[string]any{"description": r.description}
		if r.schema != nil {
			resp["content"] = jsonContent(r.schema)
		}
		responses[r.code] = resp
	}

	op := map[string]any{
		"summary":   summary,
		"tags":      []string{e.Name},
		"responses": responses,
	}
	if body != nil {
		op["requestBody"] = map[string]any{"required": true, "content": jsonContent(body)}
	}
	return op
}

func withParams(op map[string]any, params ...map[string]any) map[string]any {
	op["parameters"] = params
	return op
}

func queryParam(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]string{"type": "string"},
	}
}

func jsonContent(schema any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func schemaRef(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func mustColumn(e *Entity, name string) Column {
	c, _ := e.Column(name)
	return c
}

func entitySchema(e *Entity) map[string]any {
	properties := make(map[string]any, len(e.Columns)+len(e.Relations))
	var required []string
	for _, col := range e.Columns {
		properties[col.Name] = columnSchema(col)
		if !col.IsNullable && !col.HasDefault {
			required = append(required, col.Name)
		}
	}
	for _, rel := range e.Relations {
		switch rel.Kind {
		case OneToMany:
			properties[rel.Name] = map[string]any{"type": "array", "items": schemaRef(rel.Target)}
		case ManyToOne:
			properties[rel.Name] = map[string]any{"oneOf": []any{schemaRef(rel.Target), map[string]string{"type": "null"}}}
		}
	}

	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func columnSchema(col Column) map[string]any {
	s := make(map[string]any)
	switch col.Kind() {
	case KindInteger:
		s["type"] = "integer"
		if strings.Contains(strings.ToLower(col.DataType), "big") {
			s["format"] = "int64"
		}
	case KindFloat:
		s["type"] = "number"
	case KindBool:
		s["type"] = "boolean"
	case KindDate:
		s["type"] = "string"
		s["format"] = "date"
	case KindDateTime:
		s["type"] = "string"
		s["format"] = "date-time"
	case KindUUID:
		s["type"] = "string"
		s["format"] = "uuid"
	case KindJSON:
		s["type"] = "object"
		s["additionalProperties"] = true
	default:
		s["type"] = "string"
	}
	if col.IsNullable {
		s["type"] = []any{s["type"], "null"}
	}
	return s
}
