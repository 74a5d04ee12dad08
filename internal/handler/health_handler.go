package handler

import (
	"net/http"

	"note-history-server/pkg/response"
)

const ServiceName = "note-history-server"

func Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.MethodNotAllowed(w)
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	response.NotFound(w, "not found")
}
