package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"petpet/utils"
)

// byParam picks a handler by the literal value of a path parameter and
// falls back to def. httprouter cannot hold a static segment and a
// parameter at the same position, so routes like /orders/my-orders are
// registered as /orders/:id and resolved here.
func byParam(name string, def httprouter.Handle, static map[string]httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if h, ok := static[ps.ByName(name)]; ok {
			h(w, r, ps)
			return
		}
		if def == nil {
			utils.SendError(w, http.StatusNotFound, "Not found")
			return
		}
		def(w, r, ps)
	}
}

// alias exposes parameter from under the name to as well.
func alias(from, to string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		out := make(httprouter.Params, len(ps), len(ps)+1)
		copy(out, ps)
		h(w, r, append(out, httprouter.Param{Key: to, Value: ps.ByName(from)}))
	}
}
