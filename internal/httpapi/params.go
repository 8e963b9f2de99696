package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
)

func decodeURLSafeParam(r *http.Request, name string) ([]byte, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, svcerr.New(svcerr.CodeMalformed, "missing "+name+" parameter")
	}
	raw, err := base64.URLEncoding.DecodeString(v)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeMalformed, "invalid "+name+" parameter", err)
	}
	return raw, nil
}

func parsePublicKeyParam(r *http.Request, name string) (model.PublicKey, error) {
	raw, err := decodeURLSafeParam(r, name)
	if err != nil {
		return model.PublicKey{}, err
	}
	return model.DecodePublicKey(raw)
}

func parseIntParam(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
