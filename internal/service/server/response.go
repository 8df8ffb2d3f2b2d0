package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/utils/log"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Status    string     `json:"status"`
	Kind      fault.Kind `json:"kind"`
	Error     string     `json:"error"`
	Retryable bool       `json:"retryable"`
}

func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindStoreIO:
		return http.StatusServiceUnavailable
	case fault.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("write response failed", zap.Error(err))
	}
}

// writeOK wraps v as {"status":"success", key: v}.
func writeOK(w http.ResponseWriter, status int, key string, v any) {
	writeJSON(w, status, map[string]any{
		"status": "success",
		key:      v,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status := statusOf(kind)

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}

	writeJSON(w, status, errorBody{
		Status:    "error",
		Kind:      kind,
		Error:     err.Error(),
		Retryable: fault.Retryable(err),
	})
}

// decode reads a JSON body into v. Unknown fields are allowed.
func decode(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fault.Validation("decode request", "empty body")
		}
		return fault.Validation("decode request", "%v", err)
	}
	return nil
}

// Bytes accepts either a base64 string or an array of byte values.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return err
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("byte value %d out of range", v)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	}

	var raw []byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = raw
	return nil
}
