// Package rest exposes the entities of a schema.Registry as a JSON REST API.
//
// Every entity is served at {base}/<entity>, where base defaults to /api:
//
//	Method    | Path                | Description
//	----------|---------------------|------------------------------------------
//	GET       | /<entity>           | Search; ?q={"filters": [...]} or list all
//	GET       | /<entity>/<id>      | Fetch one object, 404 if absent
//	POST      | /<entity>           | Create; 201 {"<pk>": id}
//	PATCH/PUT | /<entity>           | Update every match of the body's search
//	PATCH/PUT | /<entity>/<id>      | Update one; returns the refreshed object
//	DELETE    | /<entity>/<id>      | Delete; 204 whether or not it existed
//	GET       | /eval/<entity>      | Aggregates: {"functions": [{"name": "sum", "field": "age"}]}
//	GET       | /schema             | Reflected entities and relations
//	GET       | /openapi.json       | OpenAPI document, when enabled
//
// Query parameters of a search:
//
//	Parameter         | Description
//	------------------|------------------------------------------------
//	?q={...}          | JSON search: filters, order_by, limit, offset, single
//	?order=col.desc   | Order results (supports nullsfirst/nullslast)
//	?limit=100        | Limit number of results
//	?offset=0         | Pagination offset
//	?col=gte.val      | Filter a column, e.g. eq, neq, gt, lt, like, in.(a,b), is.null
//
// Objects include their direct relations one level deep: one-to-many as a
// list, many-to-one as an object or null. Writes accept relation edits as
// {"<relation>": {"add": [...], "remove": [...]}}; a remove entry with
// "__delete__": true also deletes the related row.
//
// HTTP headers:
//
//	Header                 | Description
//	-----------------------|----------------------------------------
//	Prefer: return=minimal | 204 instead of the refreshed object on update
//	Prefer: count=exact    | Content-Range with the total number of matches
//
// Example usage:
//
//	srv, err := rest.NewServer(db.DB, store.New(db.Dialect), registry,
//		rest.WithAuth(middleware.OIDCAuthenticated, "POST", "PATCH", "PUT", "DELETE"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	r := httputil.NewRouter()
//	srv.Register(r)
//	log.Fatal(r.ListenAndServe(":8080"))
package rest
