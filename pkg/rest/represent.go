package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
)

const dateLayout = "2006-01-02"

// represent turns records of e into response objects: columns with dates
// formatted, plus every direct relation one level deep. Each relation costs
// one query regardless of the number of records.
func (s *Server) represent(ctx context.Context, conn store.Conn, e *schema.Entity, recs []store.Record) ([]map[string]any, error) {
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = columns(e, rec)
	}

	for _, rel := range e.Relations {
		target, ok := s.registry.Lookup(rel.Target)
		if !ok {
			continue
		}

		keys := make([]any, 0, len(recs))
		seen := make(map[string]bool)
		for _, rec := range recs {
			v := rec[rel.LocalColumn]
			if v == nil || seen[key(v)] {
				continue
			}
			seen[key(v)] = true
			keys = append(keys, v)
		}

		related, err := s.st.Model(target).SelectIn(ctx, conn, rel.RemoteColumn, keys)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", e.Name, rel.Name, err)
		}
		byKey := make(map[string][]map[string]any)
		for _, r := range related {
			k := key(r[rel.RemoteColumn])
			byKey[k] = append(byKey[k], columns(target, r))
		}

		for i, rec := range recs {
			matches := []map[string]any{}
			if v := rec[rel.LocalColumn]; v != nil {
				if m, ok := byKey[key(v)]; ok {
					matches = m
				}
			}
			switch rel.Kind {
			case schema.OneToMany:
				out[i][rel.Name] = matches
			case schema.ManyToOne:
				if len(matches) == 0 {
					out[i][rel.Name] = nil
				} else {
					out[i][rel.Name] = matches[0]
				}
			}
		}
	}
	return out, nil
}

func (s *Server) representOne(ctx context.Context, conn store.Conn, e *schema.Entity, rec store.Record) (map[string]any, error) {
	objs, err := s.represent(ctx, conn, e, []store.Record{rec})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// columns copies rec, rendering date columns without a time part and
// datetimes in RFC 3339.
func columns(e *schema.Entity, rec store.Record) map[string]any {
	obj := make(map[string]any, len(rec))
	for name, v := range rec {
		if t, ok := v.(time.Time); ok {
			if e.IsDate(name) {
				v = t.Format(dateLayout)
			} else {
				v = t.Format(time.RFC3339Nano)
			}
		}
		obj[name] = v
	}
	return obj
}

// key normalises a column value for matching across queries, where drivers
// may return the same number as different Go types.
func key(v any) string {
	return fmt.Sprint(v)
}
