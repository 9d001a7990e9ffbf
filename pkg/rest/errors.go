package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edgeflare/restless/pkg/httputil"
	"github.com/edgeflare/restless/pkg/relation"
	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/search"
	"github.com/edgeflare/restless/pkg/store"
	"go.uber.org/zap"
)

// ValidationErrorResponse carries per-field messages of a rejected write.
type ValidationErrorResponse struct {
	ValidationErrors map[string]string `json:"validation_errors"`
}

// writeError translates err into a response. Anything it does not recognise
// is an internal error and is logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unknownField *schema.UnknownFieldError
		unsupported  *search.UnsupportedOperatorError
		unsupportedF *search.UnsupportedFunctionError
		notRelated   *relation.NotFoundError
		invalid      *store.ValidationError
	)

	switch {
	case errors.As(err, &invalid):
		httputil.JSON(w, http.StatusBadRequest, ValidationErrorResponse{ValidationErrors: invalid.Errors})
	case errors.Is(err, search.ErrDecode):
		httputil.Error(w, http.StatusBadRequest, "Unable to decode data")
	case errors.As(err, &unknownField):
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("No such field %q", unknownField.Field))
	case errors.As(err, &unsupported):
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("No such operator %q", unsupported.Op))
	case errors.As(err, &unsupportedF):
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("No such function %q", unsupportedF.Name))
	case errors.As(err, &notRelated):
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("No related %s matching %v", notRelated.Relation, notRelated.Attrs))
	case errors.Is(err, store.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, "No result found")
	case errors.Is(err, search.ErrNoResult):
		httputil.Error(w, http.StatusOK, "No result found")
	case errors.Is(err, search.ErrMultipleResults):
		httputil.Error(w, http.StatusOK, "Multiple results found")
	default:
		s.logger.Error("internal error",
			zap.String("req_id", httputil.RequestID(r)),
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
