package utils

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"petpet/apperr"
)

// ParsePage reads page and pageSize from the query string, falling back to
// 1 and defaultSize and capping pageSize at maxSize.
func ParsePage(r *http.Request, defaultSize, maxSize int) (page, pageSize int) {
	q := r.URL.Query()

	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ = strconv.Atoi(q.Get("pageSize"))
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// ParamID parses a positive integer route parameter.
func ParamID(ps httprouter.Params, name string) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Newf(apperr.InvalidArgument, "Invalid %s", name)
	}
	return id, nil
}

func QueryInt64(r *http.Request, key string) (*int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "Invalid %s", key)
	}
	return &n, nil
}

func QueryInt(r *http.Request, key string) (*int, error) {
	n, err := QueryInt64(r, key)
	if err != nil || n == nil {
		return nil, err
	}
	v := int(*n)
	return &v, nil
}

func QueryBool(r *http.Request, key string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "Invalid %s", key)
	}
	return &b, nil
}

// QueryTime accepts RFC 3339 timestamps or plain dates (2006-01-02, UTC).
func QueryTime(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Newf(apperr.InvalidArgument, "Invalid %s", key)
}
