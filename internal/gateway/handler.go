package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/arlojanssen/refstream/internal/authz"
	"github.com/arlojanssen/refstream/internal/catalog"
	"github.com/arlojanssen/refstream/internal/query"
)

// Handler is a reference composition root: it parses an HTTP request into
// a query.Query, authorizes it, and drives the Processor. spec.md §1
// places request parsing/routing and credential lookup out of scope for
// the engine proper (they are "the controller" and "the auth layer");
// this type exists only so the gateway is runnable end to end, the same
// role the teacher's http.Server plays around media.Manifest.
type Handler struct {
	Processor  *Processor
	Catalog    catalog.Catalog
	Authorizer authz.Authorizer
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q, err := h.buildQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.authorize(r, q); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.Processor.Process(w, r, q); err != nil {
		var valErr query.QueryValidationError
		var refErr query.MissingReferenceError
		var fmtErr query.InconsistentFormatError
		switch {
		case errors.As(err, &valErr), errors.As(err, &refErr), errors.As(err, &fmtErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			// Stage failures never reach here: Process reports them
			// through the data-truncated trailer and returns nil. The
			// errors that do reach here (e.g. the merge temp directory
			// could not be created) are answered with a 500.
			http.Error(w, "", http.StatusInternalServerError)
		}
	}
}

func (h *Handler) authorize(r *http.Request, q query.Query) error {
	if h.Authorizer == nil {
		return nil
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	for _, f := range q.Files {
		if err := h.Authorizer.Authorize(r.Context(), token, f.DataObject); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) buildQuery(r *http.Request) (query.Query, error) {
	params := r.URL.Query()

	accessions := params["accession"]
	if len(accessions) == 0 {
		return query.Query{}, query.QueryValidationError{Reason: "missing accession parameter"}
	}

	files := make([]query.FileRef, 0, len(accessions))
	var reference string
	var catalogFormat query.Format
	for _, id := range accessions {
		entry, err := h.Catalog.Resolve(r.Context(), id)
		if err != nil {
			return query.Query{}, query.QueryValidationError{Reason: err.Error()}
		}
		files = append(files, query.FileRef{DataObject: entry.DataObject, Path: entry.Path})
		if entry.Reference != "" {
			reference = entry.Reference
		}
		if catalogFormat == "" && entry.Format != "" {
			catalogFormat = entry.Format
		}
	}

	q := query.Query{
		Files:     files,
		Reference: reference,
	}

	switch explicit := params.Get("format"); {
	case explicit != "":
		q.Format = query.Format(strings.ToUpper(explicit))
	case catalogFormat != "":
		// The catalog already sniffed a format hint when the entry was
		// cataloged; prefer it over re-deriving one from the filename.
		q.Format = catalogFormat
	case len(files) > 0:
		if sniffed, ok := query.SniffFormat(files[0].DataObject); ok {
			q.Format = sniffed
		}
	}

	if regions, ok := params["region"]; ok {
		q.Regions = regions
	}

	return q, nil
}
